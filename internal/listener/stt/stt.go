// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     stt
// Description: Speech-to-Text interface
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package stt

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transcriber converts an utterance artifact to text. An artifact without
// recognizable speech yields an empty string and a nil error.
type Transcriber interface {
	// TranscribeFile transcribes the mono 16-bit PCM WAV file at path
	TranscribeFile(ctx context.Context, path string) (string, error)

	// Close releases resources
	Close() error
}

// Engine names
const (
	EngineWhisperCLI    = "whisper-cli"
	EngineWhisperNative = "whisper-native"
	EngineOpenAI        = "openai"
)

// Config holds STT configuration
type Config struct {
	// Engine selects the implementation
	Engine string

	// ModelPath is the path to the model file (whisper engines)
	ModelPath string

	// Language is the target language (e.g., "de", "en", "auto")
	Language string

	// BinaryPath overrides the whisper CLI lookup
	BinaryPath string

	// BaseURL, APIKey and Model address an OpenAI-compatible transcription server
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds one transcription
	Timeout time.Duration
}

// DefaultConfig returns default STT configuration
func DefaultConfig() Config {
	return Config{
		Engine:   EngineWhisperCLI,
		Language: "auto",
		Model:    "whisper-1",
		Timeout:  2 * time.Minute,
	}
}

// New creates the transcriber selected by cfg.Engine
func New(cfg Config) (Transcriber, error) {
	switch cfg.Engine {
	case EngineWhisperCLI, "":
		return NewWhisperCLI(cfg)
	case EngineWhisperNative:
		return NewWhisperNative(cfg)
	case EngineOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Engine)
	}
}

// bound applies the per-transcription timeout. A non-positive timeout leaves
// ctx unbounded.
func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cleanTranscript strips whisper timestamp prefixes and joins lines
func cleanTranscript(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		// [00:00:00.000 --> 00:00:05.000] text
		if strings.HasPrefix(line, "[") && strings.Contains(line, "-->") {
			if idx := strings.Index(line, "]"); idx != -1 {
				line = strings.TrimSpace(line[idx+1:])
			}
		}
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	return strings.Join(cleanLines, " ")
}
