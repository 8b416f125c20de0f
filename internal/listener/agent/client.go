// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     agent
// Description: Client for the command-execution agent (chat completions API)
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// HeaderAgentID selects the agent that handles the request
	HeaderAgentID = "x-openclaw-agent-id"

	// HeaderSessionKey binds requests to one conversation
	HeaderSessionKey = "x-openclaw-session-key"
)

// DefaultSystemPrompt instructs the agent to execute and answer briefly
const DefaultSystemPrompt = "You are a voice-controlled assistant. The user spoke a command. " +
	"1. Execute the command immediately. " +
	"2. When finished, reply with the spoken result text directly. " +
	"3. Keep it brief. No emojis, no markdown."

var (
	// ErrTimeout is returned when the agent does not answer within the configured timeout
	ErrTimeout = errors.New("agent request timed out")

	// ErrStatus is matched by every StatusError
	ErrStatus = errors.New("agent returned non-OK status")

	// ErrEmptyChoices is returned for a response without choices
	ErrEmptyChoices = errors.New("agent response has no choices")
)

// StatusError reports a non-200 HTTP status
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent returned status %d", e.Code)
}

// Is makes errors.Is(err, ErrStatus) match
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Config holds agent client configuration
type Config struct {
	// URL is the API base, e.g. http://127.0.0.1:9527/v1
	URL          string
	APIKey       string
	AgentID      string
	SessionKey   string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		URL:          "http://127.0.0.1:9527/v1",
		AgentID:      "main",
		SessionKey:   "agent:main:voice",
		Model:        "openclaw",
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      300 * time.Second,
	}
}

// Client posts transcripts to the agent
type Client struct {
	client       oai.Client
	model        string
	systemPrompt string
	timeout      time.Duration
}

// New creates an agent client. Retries are disabled: the agent may execute
// side effects and must see each command exactly once.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("agent url must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("agent model must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	// the SDK seeds its options from OPENAI_* variables; the local agent
	// must only ever see the configured key
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL(cfg.URL)),
		option.WithMaxRetries(0),
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.APIKey == "" {
		opts = append(opts, option.WithHeaderDel("authorization"))
	}
	if cfg.AgentID != "" {
		opts = append(opts, option.WithHeader(HeaderAgentID, cfg.AgentID))
	}
	if cfg.SessionKey != "" {
		opts = append(opts, option.WithHeader(HeaderSessionKey, cfg.SessionKey))
	}

	return &Client{
		client:       oai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		timeout:      cfg.Timeout,
	}, nil
}

// baseURL normalizes the configured URL to the API root with a trailing slash.
// A full .../chat/completions endpoint is accepted as well.
func baseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}

// Send posts the transcript with the system instruction and returns the raw
// reply text. Use CleanReply before speaking it.
func (c *Client) Send(ctx context.Context, transcript string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []oai.ChatCompletionMessageParamUnion
	if c.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(c.systemPrompt))
	}
	messages = append(messages, oai.UserMessage(transcript))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}

	var httpResp *http.Response
	resp, err := c.client.Chat.Completions.New(reqCtx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		return "", c.classify(ctx, reqCtx, err)
	}
	if httpResp != nil && httpResp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: httpResp.StatusCode}
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps transport failures to ErrTimeout or StatusError
func (c *Client) classify(parent, reqCtx context.Context, err error) error {
	if parent.Err() != nil {
		// caller gave up, e.g. shutdown
		return fmt.Errorf("agent request cancelled: %w", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.StatusCode}
	}
	return fmt.Errorf("agent request failed: %w", err)
}
