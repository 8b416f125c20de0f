// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     stt
// Description: Whisper STT implementation using whisper.cpp CLI
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// WhisperCLI implements speech-to-text using the whisper.cpp CLI
type WhisperCLI struct {
	binaryPath string
	modelPath  string
	language   string
	timeout    time.Duration
}

// NewWhisperCLI creates a transcriber. An empty BinaryPath searches PATH
// and the usual Homebrew prefixes.
func NewWhisperCLI(cfg Config) (*WhisperCLI, error) {
	bin := cfg.BinaryPath
	if bin == "" {
		bin = lookupBinary(whisperBinaries, whisperPrefixes)
		if bin == "" {
			return nil, errors.New("whisper binary not found in PATH")
		}
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper model not configured")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("whisper model unavailable: %w", err)
	}

	w := &WhisperCLI{binaryPath: bin, modelPath: cfg.ModelPath, language: cfg.Language, timeout: cfg.Timeout}
	if w.language == "" {
		w.language = "auto"
	}
	return w, nil
}

const waitDelay = 500 * time.Millisecond

var (
	whisperBinaries = []string{"whisper-cli", "whisper-cpp", "whisper"}
	whisperPrefixes = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}
)

func lookupBinary(names, prefixes []string) string {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, dir := range prefixes {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				return path
			}
		}
	}
	return ""
}

// TranscribeFile runs whisper on the artifact. The transcript is read from
// <path>.txt when whisper writes one, otherwise from stdout.
func (w *WhisperCLI) TranscribeFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := bound(ctx, w.timeout)
	defer cancel()

	base := strings.TrimSuffix(path, ".wav")
	txtPath := base + ".txt"
	defer os.Remove(txtPath)

	// -nt: no timestamps, -np: no progress output
	cmd := exec.CommandContext(ctx, w.binaryPath,
		"-m", w.modelPath, "-l", w.language, "-nt", "-np", "-otxt", "-of", base, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children of a killed wrapper script may keep the output pipes open
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("whisper interrupted: %w", ctxErr)
		}
		return "", fmt.Errorf("whisper failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(txtPath)
	switch {
	case err == nil:
		return cleanTranscript(string(data)), nil
	case errors.Is(err, os.ErrNotExist):
		return cleanTranscript(stdout.String()), nil
	default:
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
}

// Close releases resources
func (w *WhisperCLI) Close() error {
	return nil
}

// Language returns the current language
func (w *WhisperCLI) Language() string {
	return w.language
}
