// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     tts
// Description: Text-to-speech using the macOS say command
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Say speaks through the macOS say command. Any binary accepting the same
// -v and -r flags can be configured instead.
type Say struct {
	binary string
	voice  string
	rate   int
}

// NewSay creates a say renderer
func NewSay(cfg Config) *Say {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "say"
	}
	return &Say{
		binary: binary,
		voice:  cfg.Voice,
		rate:   cfg.Rate,
	}
}

// IsAvailable checks if the binary can be found
func (s *Say) IsAvailable() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Speak speaks the text and waits for it to finish
func (s *Say) Speak(ctx context.Context, text string) error {
	args := []string{}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.rate > 0 {
		args = append(args, "-r", strconv.Itoa(s.rate))
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, stderr: %s", s.binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Close is a no-op
func (s *Say) Close() error {
	return nil
}
