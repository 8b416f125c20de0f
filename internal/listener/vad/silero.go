package vad

import (
	"errors"
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

const (
	sileroWindowSize    = 512
	sileroBufferSeconds = 30
	sileroMaxSpeech     = 20
)

const defaultSileroThreshold = 0.5

// Silero runs the Silero VAD model through sherpa-onnx
type Silero struct {
	vad *sherpa.VoiceActivityDetector
}

// NewSilero loads the Silero model named by cfg.Model
func NewSilero(cfg Config) (*Silero, error) {
	if cfg.Model == "" {
		return nil, errors.New("silero vad requires a model path")
	}

	c := &sherpa.VadModelConfig{}
	c.SileroVad.Model = cfg.Model
	c.SileroVad.Threshold = cfg.Threshold
	if c.SileroVad.Threshold <= 0 || c.SileroVad.Threshold >= 1 {
		c.SileroVad.Threshold = defaultSileroThreshold
	}
	c.SileroVad.MinSilenceDuration = float32(cfg.MinSilenceDuration.Seconds())
	c.SileroVad.MinSpeechDuration = float32(cfg.MinSpeechDuration.Seconds())
	c.SileroVad.MaxSpeechDuration = sileroMaxSpeech
	c.SileroVad.WindowSize = sileroWindowSize
	c.SampleRate = cfg.SampleRate
	c.NumThreads = cfg.NumThreads
	c.Provider = cfg.Provider

	v := sherpa.NewVoiceActivityDetector(c, sileroBufferSeconds)
	if v == nil {
		return nil, fmt.Errorf("failed to create silero vad from %s", cfg.Model)
	}
	return &Silero{vad: v}, nil
}

// AcceptFrame feeds one frame. Completed segments are discarded since only
// the running speech flag is used.
func (s *Silero) AcceptFrame(samples []float32) error {
	s.vad.AcceptWaveform(samples)
	for !s.vad.IsEmpty() {
		s.vad.Pop()
	}
	return nil
}

// IsSpeechActive reports whether the model currently detects speech
func (s *Silero) IsSpeechActive() bool {
	return s.vad.IsSpeech()
}

// Reset clears buffered audio and state
func (s *Silero) Reset() {
	s.vad.Clear()
}

// Close releases the native detector
func (s *Silero) Close() error {
	if s.vad != nil {
		sherpa.DeleteVoiceActivityDetector(s.vad)
		s.vad = nil
	}
	return nil
}
