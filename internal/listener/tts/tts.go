// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     tts
// Description: Text-to-Speech renderers
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package tts

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Renderer speaks text aloud. Speak returns once playback has finished.
type Renderer interface {
	Speak(ctx context.Context, text string) error
	Close() error
}

// Player plays a rendered audio file
type Player interface {
	PlayFile(ctx context.Context, path string) error
}

// Engine names
const (
	EngineSay   = "say"
	EnginePiper = "piper"
)

// Config holds TTS configuration
type Config struct {
	// Engine selects the renderer
	Engine string

	// Voice is the voice name passed to say (-v)
	Voice string

	// Rate is the speech rate in words per minute (say engine)
	Rate int

	// BinaryPath is the path to the TTS binary (say, espeak-ng or piper)
	BinaryPath string

	// ModelPath is the path to the piper voice model
	ModelPath string

	// TempDir receives piper output files
	TempDir string
}

// DefaultConfig returns default TTS configuration
func DefaultConfig() Config {
	return Config{
		Engine:     EngineSay,
		Rate:       200,
		BinaryPath: "say",
	}
}

// New creates the renderer selected by cfg.Engine. player is used by
// engines that synthesize to a file.
func New(cfg Config, player Player) (Renderer, error) {
	switch cfg.Engine {
	case EngineSay, "":
		return NewSay(cfg), nil
	case EnginePiper:
		return NewPiper(cfg, player)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Engine)
	}
}

var (
	// letters, digits, underscore, whitespace, apostrophes and basic punctuation survive
	unspeakable = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Zs},.?!'’，。？！]`)
	spaces      = regexp.MustCompile(`[ \t\p{Zs}]+`)
)

// Sanitize strips emoji, markup and symbols the renderer would read out loud
func Sanitize(text string) string {
	text = unspeakable.ReplaceAllString(text, "")
	text = spaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
