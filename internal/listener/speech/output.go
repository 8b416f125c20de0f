// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     speech
// Description: Serialized speech output that mutes capture while talking
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/msto63/voicelistener/internal/listener/tts"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// DefaultRenderTimeout bounds a single utterance
const DefaultRenderTimeout = 5 * time.Minute

// ErrClosed is returned by SpeakAndWait after Close
var ErrClosed = errors.New("speech output closed")

// Input is the part of the audio source that speech output controls
type Input interface {
	Suspend() error
	Resume() error
	Flush() int
}

// Output renders utterances one at a time in the order they were queued.
// While an utterance renders the input is suspended and its queued frames
// are discarded.
type Output struct {
	input    Input
	renderer tts.Renderer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	timeout  time.Duration

	gate      *semaphore.Weighted
	rendering atomic.Bool

	mu      sync.Mutex
	pending []string
	wake    chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Output
type Option func(*Output)

// WithMetrics records flushed frames and render latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Output) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *Output) { o.logger = l }
}

// WithRenderTimeout bounds each utterance. Zero disables the bound.
func WithRenderTimeout(d time.Duration) Option {
	return func(o *Output) { o.timeout = d }
}

// New creates a speech output
func New(input Input, renderer tts.Renderer, opts ...Option) *Output {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Output{
		input:    input,
		renderer: renderer,
		metrics:  metrics.NewNop(),
		logger:   logging.NewNop(),
		timeout:  DefaultRenderTimeout,
		gate:     semaphore.NewWeighted(1),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.run()
	return o
}

// Speak queues text for rendering and returns immediately. Queued
// utterances are rendered in call order.
func (o *Output) Speak(text string) {
	o.mu.Lock()
	if o.ctx.Err() != nil {
		o.mu.Unlock()
		o.logger.Warn("Speech output closed, dropping utterance", "text", text)
		return
	}
	o.wg.Add(1)
	o.pending = append(o.pending, text)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// run is the single render worker behind Speak
func (o *Output) run() {
	defer close(o.done)
	for {
		select {
		case <-o.wake:
		case <-o.ctx.Done():
			o.drop()
			return
		}
		for {
			text, ok := o.next()
			if !ok {
				break
			}
			if o.ctx.Err() == nil {
				if err := o.SpeakAndWait(o.ctx, text); err != nil && !errors.Is(err, ErrClosed) {
					o.logger.Warn("Speech rendering failed", "error", err)
				}
			}
			o.wg.Done()
		}
	}
}

func (o *Output) next() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return "", false
	}
	text := o.pending[0]
	o.pending[0] = ""
	o.pending = o.pending[1:]
	return text, true
}

// drop discards utterances still queued after Close
func (o *Output) drop() {
	o.mu.Lock()
	n := len(o.pending)
	o.pending = nil
	o.mu.Unlock()
	for i := 0; i < n; i++ {
		o.wg.Done()
	}
}

// SpeakAndWait renders text and returns when playback has finished and
// capture is running again.
func (o *Output) SpeakAndWait(ctx context.Context, text string) error {
	clean := tts.Sanitize(text)
	if clean == "" {
		o.logger.Debug("Nothing speakable", "text", text)
		return nil
	}

	if err := o.gate.Acquire(ctx, 1); err != nil {
		if o.ctx.Err() != nil {
			return ErrClosed
		}
		return err
	}
	defer o.gate.Release(1)

	o.rendering.Store(true)
	defer o.rendering.Store(false)

	if err := o.input.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend capture: %w", err)
	}
	if n := o.input.Flush(); n > 0 {
		o.metrics.FramesFlushed.Add(ctx, int64(n))
		o.logger.Debug("Flushed queued frames", "count", n)
	}

	o.logger.Info("Speaking", "text", clean)
	start := time.Now()
	renderErr := o.render(ctx, clean)
	metrics.ObserveSince(ctx, o.metrics.SpeechDuration, start)

	if err := o.input.Resume(); err != nil {
		return errors.Join(renderErr, fmt.Errorf("failed to resume capture: %w", err))
	}
	return renderErr
}

func (o *Output) render(ctx context.Context, text string) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := o.renderer.Speak(ctx, text); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

// Rendering reports whether an utterance is playing right now
func (o *Output) Rendering() bool {
	return o.rendering.Load()
}

// Wait blocks until every queued utterance has been rendered
func (o *Output) Wait() {
	o.wg.Wait()
}

// Close cancels queued and in-flight utterances, waits for them to return
// and closes the renderer.
func (o *Output) Close() error {
	o.mu.Lock()
	o.cancel()
	o.mu.Unlock()
	o.wg.Wait()
	<-o.done
	return o.renderer.Close()
}
