package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI transcribes through an OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI, LocalAI, faster-whisper-server, ...)
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

// NewOpenAI creates a client for cfg.BaseURL
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai stt requires a base url")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	language := cfg.Language
	if language == "auto" {
		language = ""
	}

	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: language,
		timeout:  cfg.Timeout,
	}, nil
}

// TranscribeFile uploads the artifact and returns the recognized text
func (o *OpenAI) TranscribeFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := bound(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: path,
		Language: o.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Close releases resources
func (o *OpenAI) Close() error {
	return nil
}
