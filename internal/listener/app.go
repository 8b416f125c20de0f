// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     listener
// Description: Voice listener application - consumer loop and wiring
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/dispatch"
	"github.com/msto63/voicelistener/internal/listener/speech"
	"github.com/msto63/voicelistener/internal/listener/tts"
	"github.com/msto63/voicelistener/internal/listener/vad"
	"github.com/msto63/voicelistener/internal/listener/wakeword"
	"github.com/msto63/voicelistener/pkg/core/health"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// Dependencies are the components an App drives
type Dependencies struct {
	Source      audio.Source
	VAD         vad.Detector
	Spotter     wakeword.Spotter
	Lexicon     *wakeword.Lexicon
	Transcriber dispatch.Transcriber
	Agent       dispatch.Agent
	Renderer    tts.Renderer

	// Optional
	Clock   Clock
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// App is the voice listener
type App struct {
	mu      sync.Mutex
	config  Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	running bool

	// wall-clock unix nanos of the last frame handed to the machine
	lastFrame atomic.Int64

	source      audio.Source
	vad         vad.Detector
	spotter     wakeword.Spotter
	transcriber dispatch.Transcriber

	speech   *speech.Output
	pipeline *dispatch.Pipeline
	machine  *Machine
	pool     *dispatch.Pool
}

// New creates a voice listener from cfg and deps
func New(cfg Config, deps Dependencies) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Source == nil || deps.VAD == nil || deps.Spotter == nil ||
		deps.Transcriber == nil || deps.Agent == nil || deps.Renderer == nil {
		return nil, errors.New("missing listener dependency")
	}
	if deps.Logger == nil {
		deps.Logger = logging.New("listener")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	a := &App{
		config:      cfg,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		source:      deps.Source,
		vad:         deps.VAD,
		spotter:     deps.Spotter,
		transcriber: deps.Transcriber,
	}

	a.speech = speech.New(deps.Source, deps.Renderer,
		speech.WithMetrics(deps.Metrics),
		speech.WithLogger(deps.Logger.Named("speech")),
		speech.WithRenderTimeout(cfg.TTS.RenderTimeout.Duration),
	)

	a.pipeline = dispatch.NewPipeline(dispatch.PipelineConfig{
		ArtifactDir:   cfg.ArtifactDir,
		KeepArtifacts: cfg.KeepArtifacts,
		Phrases:       cfg.Phrases,
	}, deps.Transcriber, deps.Agent, a.speech, deps.Metrics, deps.Logger.Named("dispatch"))

	a.machine = NewMachine(cfg.Timing(), cfg.Phrases, MachineDeps{
		VAD:       deps.VAD,
		Spotter:   deps.Spotter,
		Lexicon:   deps.Lexicon,
		Speaker:   a.speech,
		Submitter: submitFunc(a.submit),
		Clock:     deps.Clock,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger.Named("machine"),
	})

	a.machine.State().AddListener(func(oldMode, newMode Mode, _ time.Time) {
		a.logger.Debug("Mode changed", "from", oldMode, "to", newMode)
	})

	return a, nil
}

type submitFunc func(job dispatch.Job)

func (f submitFunc) Submit(job dispatch.Job) { f(job) }

func (a *App) submit(job dispatch.Job) {
	a.mu.Lock()
	pool := a.pool
	a.mu.Unlock()
	pool.Submit(job)
}

// Machine returns the turn-taking state machine
func (a *App) Machine() *Machine {
	return a.machine
}

// Pipeline returns the dispatch pipeline. Register observers before Run.
func (a *App) Pipeline() *dispatch.Pipeline {
	return a.pipeline
}

// Speech returns the speech output
func (a *App) Speech() *speech.Output {
	return a.speech
}

// Run drives the consumer loop until ctx is done or capture fails. It
// waits for in-flight dispatches before returning.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("already running")
	}
	a.running = true
	a.mu.Unlock()

	// cancelled on capture failure so in-flight dispatches give up
	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.pool = dispatch.NewPool(dispatchCtx, a.pipeline, a.config.DispatchWorkers, a.metrics)
	a.mu.Unlock()

	a.logger.Info("Starting voice listener",
		"sample_rate", a.config.SampleRate,
		"frame", a.config.FrameDuration,
		"silence_threshold", a.config.SilenceThreshold,
		"max_interaction", a.config.MaxInteraction,
	)

	if err := a.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	err := a.loop(ctx)
	if err != nil {
		cancel()
	}

	a.logger.Info("Waiting for in-flight dispatches")
	a.pool.Wait()
	a.speech.Wait()
	return err
}

func (a *App) loop(ctx context.Context) error {
	queue := a.source.Frames()
	cadence := a.config.FrameDuration.Duration
	var dropped uint64

	for {
		select {
		case err := <-a.source.Err():
			return fmt.Errorf("audio capture failed: %w", err)
		case <-ctx.Done():
			a.logger.Info("Voice listener stopping")
			return nil
		default:
		}

		if d := queue.Dropped(); d > dropped {
			a.metrics.FramesDropped.Add(ctx, int64(d-dropped))
			dropped = d
		}

		f, ok := queue.Pop(ctx, cadence)
		if !ok {
			continue
		}
		a.lastFrame.Store(time.Now().UnixNano())
		a.machine.HandleFrame(ctx, f)
	}
}

// CaptureCheck reports whether frames keep arriving. A gap longer than
// stall is unhealthy unless speech output currently holds the microphone.
func (a *App) CaptureCheck(stall time.Duration) health.Checker {
	return health.NewChecker("capture", func(ctx context.Context) health.CheckResult {
		res := health.CheckResult{Name: "capture", Status: health.StatusHealthy}

		last := a.lastFrame.Load()
		if last == 0 {
			res.Status = health.StatusUnknown
			res.Message = "no frames yet"
			return res
		}
		gap := time.Since(time.Unix(0, last))
		res.Details = map[string]interface{}{
			"last_frame_ms": gap.Milliseconds(),
			"mode":          a.machine.Mode().String(),
		}
		if gap > stall && !a.speech.Rendering() {
			res.Status = health.StatusUnhealthy
			res.Message = fmt.Sprintf("no audio for %v", gap.Round(time.Millisecond))
		}
		return res
	})
}

// Close releases every component. Call after Run has returned.
func (a *App) Close() error {
	errs := []error{
		a.speech.Close(),
		a.source.Close(),
		a.vad.Close(),
		a.spotter.Close(),
	}
	if c, ok := a.transcriber.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
