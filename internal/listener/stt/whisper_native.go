package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/msto63/voicelistener/internal/listener/encoder"
)

// WhisperNative transcribes in-process with the whisper.cpp bindings.
// The model is shared; every call creates its own context.
type WhisperNative struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
	timeout  time.Duration
}

// NewWhisperNative loads the ggml model at cfg.ModelPath
func NewWhisperNative(cfg Config) (*WhisperNative, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", cfg.ModelPath, err)
	}

	language := cfg.Language
	if language == "" {
		language = "auto"
	}
	return &WhisperNative{model: model, language: language, timeout: cfg.Timeout}, nil
}

// TranscribeFile decodes the artifact and runs inference on it
func (w *WhisperNative) TranscribeFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := bound(ctx, w.timeout)
	defer cancel()

	dec, err := encoder.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("whisper: read artifact: %w", err)
	}
	if dec.SampleRate != whisperlib.SampleRate {
		return "", fmt.Errorf("whisper: artifact sample rate %d, need %d", dec.SampleRate, whisperlib.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// inference is CPU bound; one at a time
	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", w.language, err)
	}

	// returning false from the encoder callback aborts inference
	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(dec.Samples, proceed, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model
func (w *WhisperNative) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
