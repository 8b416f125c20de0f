// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     audio
// Description: WAV playback using PortAudio
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

const playbackBufferSize = 1024

// Playback plays rendered speech through the default output device
type Playback struct {
	mu      sync.Mutex
	playing bool
}

// NewPlayback creates a new audio playback instance
func NewPlayback() *Playback {
	return &Playback{}
}

// PlayFile plays a WAV file and returns when playback has finished or ctx is done
func (p *Playback) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.Play(ctx, f)
}

// Play decodes WAV data from r and plays it
func (p *Playback) Play(ctx context.Context, r io.ReadSeeker) error {
	samples, sampleRate, channels, err := DecodeWAV(r)
	if err != nil {
		return err
	}
	return p.PlaySamples(ctx, samples, sampleRate, channels)
}

// DecodeWAV reads a PCM WAV stream into interleaved float32 samples
func DecodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}

	return intsToFloats(buf), int(dec.SampleRate), int(dec.NumChans), nil
}

func intsToFloats(buf *goaudio.IntBuffer) []float32 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	out := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		out[i] = float32(s) / scale
	}
	return out
}

// PlaySamples plays interleaved float32 samples
func (p *Playback) PlaySamples(ctx context.Context, samples []float32, sampleRate, channels int) error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return fmt.Errorf("already playing")
	}
	p.playing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()

	if channels < 1 {
		channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]float32, playbackBufferSize*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), playbackBufferSize, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[pos:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}

	return nil
}

// IsPlaying returns whether audio is currently playing
func (p *Playback) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
