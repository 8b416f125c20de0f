// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     encoder
// Description: Serializes captured frames into a mono 16-bit PCM WAV artifact
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package encoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/msto63/voicelistener/internal/listener/audio"
)

const (
	bitDepth     = 16
	numChannels  = 1
	pcmFormat    = 1
	maxInt16     = 32767
	minInt16     = -32768
	int16Scale   = 32768.0
	artifactMode = 0o600
)

// ErrEmpty is returned when there are no samples to encode
var ErrEmpty = errors.New("no audio to encode")

// Encode writes frames as a mono 16-bit PCM WAV stream to ws
func Encode(ws io.WriteSeeker, sampleRate int, frames []audio.Frame) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	total := 0
	for _, f := range frames {
		total += len(f.Samples)
	}
	if total == 0 {
		return ErrEmpty
	}

	data := make([]int, 0, total)
	for _, f := range frames {
		for _, s := range f.Samples {
			data = append(data, floatToPCM16(s))
		}
	}

	enc := wav.NewEncoder(ws, sampleRate, bitDepth, numChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// WriteFile encodes frames into a new file at path. On failure no partial
// file is left behind.
func WriteFile(path string, sampleRate int, frames []audio.Frame) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, artifactMode)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close artifact: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return Encode(f, sampleRate, frames)
}

// Decoded is the content of a decoded artifact
type Decoded struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Decode reads a PCM WAV stream
func Decode(rs io.ReadSeeker) (*Decoded, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / int16Scale
	}

	return &Decoded{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}, nil
}

// ReadFile decodes the artifact at path
func ReadFile(path string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Duration returns the playback length in seconds
func (d *Decoded) Duration() float64 {
	if d.SampleRate <= 0 || d.Channels <= 0 {
		return 0
	}
	return float64(len(d.Samples)) / float64(d.Channels) / float64(d.SampleRate)
}

// floatToPCM16 converts a sample in [-1, 1] to int16 range, clamping overflow
func floatToPCM16(s float32) int {
	v := int(s * int16Scale)
	if v > maxInt16 {
		return maxInt16
	}
	if v < minInt16 {
		return minInt16
	}
	return v
}
