package vad

import "math"

const defaultEnergyThreshold = 0.015

// Energy is a model-free detector based on the RMS level of each frame,
// with hysteresis between a start and a lower stop threshold.
type Energy struct {
	start  float64
	stop   float64
	active bool
}

// NewEnergy creates an energy detector. A Threshold outside (0, 1) selects the default level.
func NewEnergy(cfg Config) *Energy {
	start := float64(cfg.Threshold)
	if start <= 0 || start >= 1 {
		start = defaultEnergyThreshold
	}
	return &Energy{start: start, stop: start / 2}
}

// AcceptFrame classifies one frame
func (e *Energy) AcceptFrame(samples []float32) error {
	level := rms(samples)
	if e.active {
		e.active = level >= e.stop
	} else {
		e.active = level >= e.start
	}
	return nil
}

// IsSpeechActive reports the current classification
func (e *Energy) IsSpeechActive() bool {
	return e.active
}

// Reset clears state
func (e *Energy) Reset() {
	e.active = false
}

// Close is a no-op
func (e *Energy) Close() error {
	return nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
