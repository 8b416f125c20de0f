// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     wakeword
// Description: Streaming keyword spotting for wake phrases
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package wakeword

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Spotter is a streaming keyword classifier. Results are consumed by
// draining HasPendingResult/DecodeNext and then calling TakeResult.
type Spotter interface {
	// AcceptFrame feeds one frame of samples in [-1, 1]
	AcceptFrame(sampleRate int, samples []float32) error

	// HasPendingResult reports whether enough audio is buffered to decode
	HasPendingResult() bool

	// DecodeNext runs one decoding step
	DecodeNext() error

	// TakeResult returns the keyword found by the last decoding step, if any
	TakeResult() (string, bool)

	// ResetStream discards all consumed audio and starts a clean stream
	ResetStream() error

	// Close releases resources
	Close() error
}

// Config holds configuration for the sherpa-onnx keyword spotter
type Config struct {
	// ModelDir contains tokens.txt and the encoder/decoder/joiner onnx files
	ModelDir string

	// Encoder, Decoder, Joiner and Tokens override the files found in ModelDir
	Encoder string
	Decoder string
	Joiner  string
	Tokens  string

	// KeywordsFile holds the tokenized keywords
	KeywordsFile string

	SampleRate        int
	FeatureDim        int
	KeywordsScore     float32
	KeywordsThreshold float32
	NumTrailingBlanks int
	NumThreads        int
	Provider          string
}

// DefaultConfig returns default spotter configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FeatureDim:        80,
		KeywordsScore:     1.0,
		KeywordsThreshold: 0.15,
		NumTrailingBlanks: 1,
		NumThreads:        1,
		Provider:          "cpu",
	}
}

// resolve fills model file paths from ModelDir
func (c *Config) resolve() error {
	if c.Tokens == "" && c.ModelDir != "" {
		c.Tokens = filepath.Join(c.ModelDir, "tokens.txt")
	}

	for _, f := range []struct {
		dst    *string
		prefix string
	}{
		{&c.Encoder, "encoder"},
		{&c.Decoder, "decoder"},
		{&c.Joiner, "joiner"},
	} {
		if *f.dst != "" || c.ModelDir == "" {
			continue
		}
		path, err := findModel(c.ModelDir, f.prefix)
		if err != nil {
			return err
		}
		*f.dst = path
	}

	var missing []error
	for name, path := range map[string]string{
		"tokens":        c.Tokens,
		"encoder":       c.Encoder,
		"decoder":       c.Decoder,
		"joiner":        c.Joiner,
		"keywords_file": c.KeywordsFile,
	} {
		if path == "" {
			missing = append(missing, fmt.Errorf("%s not configured", name))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(missing...)
}

// findModel picks <prefix>*.onnx in dir, preferring int8 quantized models
func findModel(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.onnx"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s model in %s", prefix, dir)
	}
	for _, m := range matches {
		if filepath.Ext(m[:len(m)-len(".onnx")]) == ".int8" {
			return m, nil
		}
	}
	return matches[0], nil
}

// SherpaSpotter implements Spotter with a sherpa-onnx zipformer transducer
type SherpaSpotter struct {
	spotter *sherpa.KeywordSpotter
	stream  *sherpa.OnlineStream
	result  string
}

// NewSherpaSpotter loads the keyword spotter models
func NewSherpaSpotter(cfg Config) (*SherpaSpotter, error) {
	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("keyword spotter config: %w", err)
	}

	c := sherpa.KeywordSpotterConfig{}
	c.FeatConfig.SampleRate = cfg.SampleRate
	c.FeatConfig.FeatureDim = cfg.FeatureDim
	c.ModelConfig.Transducer.Encoder = cfg.Encoder
	c.ModelConfig.Transducer.Decoder = cfg.Decoder
	c.ModelConfig.Transducer.Joiner = cfg.Joiner
	c.ModelConfig.Tokens = cfg.Tokens
	c.ModelConfig.NumThreads = cfg.NumThreads
	c.ModelConfig.Provider = cfg.Provider
	c.KeywordsFile = cfg.KeywordsFile
	c.KeywordsScore = cfg.KeywordsScore
	c.KeywordsThreshold = cfg.KeywordsThreshold
	c.NumTrailingBlanks = cfg.NumTrailingBlanks

	spotter := sherpa.NewKeywordSpotter(&c)
	if spotter == nil {
		return nil, errors.New("failed to create keyword spotter")
	}

	stream := sherpa.NewKeywordStream(spotter)
	if stream == nil {
		sherpa.DeleteKeywordSpotter(spotter)
		return nil, errors.New("failed to create keyword stream")
	}

	return &SherpaSpotter{spotter: spotter, stream: stream}, nil
}

// AcceptFrame feeds samples into the current stream
func (s *SherpaSpotter) AcceptFrame(sampleRate int, samples []float32) error {
	s.stream.AcceptWaveform(sampleRate, samples)
	return nil
}

// HasPendingResult reports whether the stream has enough frames to decode
func (s *SherpaSpotter) HasPendingResult() bool {
	return s.spotter.IsReady(s.stream)
}

// DecodeNext decodes one chunk and stores any detected keyword
func (s *SherpaSpotter) DecodeNext() error {
	s.spotter.Decode(s.stream)
	if r := s.spotter.GetResult(s.stream); r != nil && r.Keyword != "" {
		s.result = r.Keyword
	}
	return nil
}

// TakeResult returns and clears the last detected keyword
func (s *SherpaSpotter) TakeResult() (string, bool) {
	r := s.result
	s.result = ""
	return r, r != ""
}

// ResetStream replaces the stream so no residual tokens survive
func (s *SherpaSpotter) ResetStream() error {
	stream := sherpa.NewKeywordStream(s.spotter)
	if stream == nil {
		return errors.New("failed to create keyword stream")
	}
	sherpa.DeleteOnlineStream(s.stream)
	s.stream = stream
	s.result = ""
	return nil
}

// Close releases the native spotter
func (s *SherpaSpotter) Close() error {
	if s.stream != nil {
		sherpa.DeleteOnlineStream(s.stream)
		s.stream = nil
	}
	if s.spotter != nil {
		sherpa.DeleteKeywordSpotter(s.spotter)
		s.spotter = nil
	}
	return nil
}
