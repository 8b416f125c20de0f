// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     tts
// Description: Text-to-speech using Piper with PortAudio playback
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Piper synthesizes speech with the piper binary and plays the result
type Piper struct {
	binaryPath string
	modelPath  string
	configPath string
	espeakData string
	tempDir    string
	player     Player
}

// NewPiper creates a Piper renderer. The voice config is expected next to
// the model as <model>.json.
func NewPiper(cfg Config, player Player) (*Piper, error) {
	if player == nil {
		return nil, errors.New("piper requires an audio player")
	}

	voiceConfig := cfg.ModelPath + ".json"
	for _, req := range []struct{ what, path string }{
		{"piper binary", cfg.BinaryPath},
		{"piper voice model", cfg.ModelPath},
		{"piper voice config", voiceConfig},
	} {
		if err := requireFile(req.what, req.path); err != nil {
			return nil, err
		}
	}

	p := &Piper{
		binaryPath: cfg.BinaryPath,
		modelPath:  cfg.ModelPath,
		configPath: voiceConfig,
		tempDir:    cfg.TempDir,
		player:     player,
	}
	if p.tempDir == "" {
		p.tempDir = os.TempDir()
	}
	// bundled releases ship espeak data beside the binary
	if dir := filepath.Join(filepath.Dir(cfg.BinaryPath), "espeak-ng-data"); isDir(dir) {
		p.espeakData = dir
	}
	return p, nil
}

func requireFile(what, path string) error {
	if path == "" {
		return fmt.Errorf("%s not configured", what)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s unavailable: %w", what, err)
	}
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Speak synthesizes text to a temporary WAV file and plays it
func (p *Piper) Speak(ctx context.Context, text string) error {
	path := filepath.Join(p.tempDir, "tts_"+uuid.NewString()+".wav")
	defer os.Remove(path)

	if err := p.SynthesizeToFile(ctx, text, path); err != nil {
		return err
	}
	return p.player.PlayFile(ctx, path)
}

// SynthesizeToFile renders text into a WAV file at path
func (p *Piper) SynthesizeToFile(ctx context.Context, text, path string) error {
	args := []string{"--model", p.modelPath, "--config", p.configPath, "--output_file", path}
	if p.espeakData != "" {
		args = append(args, "--espeak_data", p.espeakData)
	}

	// shared libraries live next to the binary in release archives
	libDir := filepath.Dir(p.binaryPath)
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	cmd.Dir = libDir
	cmd.Env = append(os.Environ(), "DYLD_LIBRARY_PATH="+libDir, "LD_LIBRARY_PATH="+libDir)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("piper synthesis failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Close releases resources
func (p *Piper) Close() error {
	return nil
}
