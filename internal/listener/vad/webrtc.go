// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     vad
// Description: WebRTC VAD implementation
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

var validRates = []int{8000, 16000, 32000, 48000}

// WebRTC implements voice activity detection using WebRTC's VAD.
// A frame counts as speech when any of its 10ms sub-frames is voiced.
type WebRTC struct {
	vad        *webrtcvad.VAD
	sampleRate int
	mode       int
	active     bool
	pending    []int16 // samples left over from a frame that is not a multiple of 10ms
}

// NewWebRTC creates a new WebRTC VAD instance
func NewWebRTC(cfg Config) (*WebRTC, error) {
	validRate := false
	for _, r := range validRates {
		if cfg.SampleRate == r {
			validRate = true
			break
		}
	}
	if !validRate {
		return nil, fmt.Errorf("invalid sample rate %d, must be one of %v", cfg.SampleRate, validRates)
	}

	mode := clampMode(cfg.Mode)
	v, err := newWebRTCVAD(mode)
	if err != nil {
		return nil, err
	}

	return &WebRTC{
		vad:        v,
		sampleRate: cfg.SampleRate,
		mode:       mode,
	}, nil
}

func newWebRTCVAD(mode int) (*webrtcvad.VAD, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}
	return v, nil
}

func clampMode(mode int) int {
	if mode < 0 {
		return 0
	}
	if mode > 3 {
		return 3
	}
	return mode
}

// AcceptFrame classifies one frame
func (w *WebRTC) AcceptFrame(samples []float32) error {
	pcm := append(w.pending, floatsToInt16(samples)...)
	sub := w.sampleRate / 100 // 10ms

	active := false
	i := 0
	for ; i+sub <= len(pcm); i += sub {
		voiced, err := w.vad.Process(w.sampleRate, int16ToBytes(pcm[i:i+sub]))
		if err != nil {
			w.pending = nil
			return fmt.Errorf("VAD processing failed: %w", err)
		}
		if voiced {
			active = true
		}
	}
	w.pending = append(w.pending[:0:0], pcm[i:]...)
	w.active = active
	return nil
}

// IsSpeechActive reports the classification of the last frame
func (w *WebRTC) IsSpeechActive() bool {
	return w.active
}

// Reset clears detector state
func (w *WebRTC) Reset() {
	w.active = false
	w.pending = nil
	if v, err := newWebRTCVAD(w.mode); err == nil {
		w.vad = v
	}
}

// Close releases resources
func (w *WebRTC) Close() error {
	// WebRTC VAD doesn't require explicit cleanup
	return nil
}

// Mode returns the current aggressiveness mode
func (w *WebRTC) Mode() int {
	return w.mode
}

// floatsToInt16 converts samples in [-1, 1] to 16-bit PCM, clamping overflow
func floatsToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// int16ToBytes converts int16 slice to bytes (little-endian)
func int16ToBytes(samples []int16) []byte {
	bytes := make([]byte, len(samples)*2)
	for i, s := range samples {
		bytes[i*2] = byte(s)
		bytes[i*2+1] = byte(s >> 8)
	}
	return bytes
}
