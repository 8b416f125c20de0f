// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     vad
// Description: Voice Activity Detection interface
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package vad

import (
	"fmt"
	"time"
)

// Detector classifies audio frames as speech or non-speech.
// It is stateful and must be fed frames in capture order.
type Detector interface {
	// AcceptFrame feeds one frame of samples in [-1, 1]
	AcceptFrame(samples []float32) error

	// IsSpeechActive reports whether the detector currently hears speech
	IsSpeechActive() bool

	// Reset clears internal state
	Reset()

	// Close releases resources
	Close() error
}

// Engine names
const (
	EngineWebRTC = "webrtc"
	EngineSilero = "silero"
	EngineEnergy = "energy"
)

// Config holds VAD configuration
type Config struct {
	// Engine selects the implementation (webrtc, silero, energy)
	Engine string

	// SampleRate is the audio sample rate (typically 8000, 16000, 32000, or 48000)
	SampleRate int

	// Mode/Aggressiveness (0-3 for WebRTC VAD, higher = more aggressive filtering)
	Mode int

	// Model is the silero_vad.onnx path for the silero engine
	Model string

	// Threshold is the speech probability (silero) or RMS start level
	// (energy). Zero selects the engine's own default.
	Threshold float32

	// MinSilenceDuration and MinSpeechDuration tune silero segmentation
	MinSilenceDuration time.Duration
	MinSpeechDuration  time.Duration

	NumThreads int
	Provider   string
}

// DefaultConfig returns default VAD configuration
func DefaultConfig() Config {
	return Config{
		Engine:             EngineWebRTC,
		SampleRate:         16000,
		Mode:               2, // Moderate aggressiveness
		MinSilenceDuration: 250 * time.Millisecond,
		MinSpeechDuration:  250 * time.Millisecond,
		NumThreads:         1,
		Provider:           "cpu",
	}
}

// New creates the detector selected by cfg.Engine
func New(cfg Config) (Detector, error) {
	switch cfg.Engine {
	case EngineWebRTC, "":
		return NewWebRTC(cfg)
	case EngineSilero:
		return NewSilero(cfg)
	case EngineEnergy:
		return NewEnergy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vad engine %q", cfg.Engine)
	}
}
