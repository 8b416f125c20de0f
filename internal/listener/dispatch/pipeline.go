package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/msto63/voicelistener/internal/listener/agent"
	"github.com/msto63/voicelistener/internal/listener/encoder"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	// ArtifactDir receives voice_cmd_<session>.wav files
	ArtifactDir string

	// KeepArtifacts leaves artifacts on disk after transcription
	KeepArtifacts bool

	Phrases Phrases
}

// Pipeline runs encode, transcribe, agent and reply for one Job
type Pipeline struct {
	cfg         PipelineConfig
	transcriber Transcriber
	agent       Agent
	speaker     Speaker
	observers   []Observer
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

// NewPipeline creates a dispatch pipeline
func NewPipeline(cfg PipelineConfig, t Transcriber, a Agent, s Speaker, m *metrics.Metrics, logger *logging.Logger) *Pipeline {
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = os.TempDir()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:         cfg,
		transcriber: t,
		agent:       a,
		speaker:     s,
		metrics:     m,
		logger:      logger,
	}
}

// AddObserver registers o for every subsequent Record. Not safe to call
// while jobs are running.
func (p *Pipeline) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

// ArtifactPath returns where the artifact for a session is written
func (p *Pipeline) ArtifactPath(sessionID string) string {
	return filepath.Join(p.cfg.ArtifactDir, "voice_cmd_"+sessionID+".wav")
}

// Run processes job and speaks exactly one reply or fallback phrase, except
// for encode failures and shutdown, which stay silent.
func (p *Pipeline) Run(ctx context.Context, job Job) Record {
	rec := Record{
		ID:        uuid.NewString(),
		SessionID: job.SessionID,
		Reason:    job.Reason,
		Started:   time.Now(),
	}
	log := p.logger.With("session", job.SessionID, "dispatch", rec.ID)

	p.process(ctx, job, &rec, log)
	rec.Duration = time.Since(rec.Started)
	if rec.Err != nil {
		rec.Error = rec.Err.Error()
	}

	switch {
	case rec.Outcome == OutcomeOK:
		rec.Spoken = rec.Reply
	case ctx.Err() != nil:
		log.Info("Shutting down, reply suppressed", "outcome", rec.Outcome)
	default:
		rec.Spoken = p.cfg.Phrases.For(rec.Outcome)
	}
	if rec.Spoken != "" {
		p.speaker.Speak(rec.Spoken)
	}

	p.metrics.RecordDispatch(ctx, string(rec.Outcome))
	if rec.Outcome.Failed() {
		log.Warn("Dispatch failed", "outcome", rec.Outcome, "error", rec.Err, "duration", rec.Duration)
	} else {
		log.Info("Dispatch complete", "outcome", rec.Outcome, "duration", rec.Duration)
	}

	for _, o := range p.observers {
		o.ObserveDispatch(rec)
	}
	return rec
}

// process fills rec.Outcome. A panic in any stage becomes an error outcome
// so the caller still speaks its single fallback.
func (p *Pipeline) process(ctx context.Context, job Job, rec *Record, log *logging.Logger) {
	defer func() {
		if r := recover(); r != nil {
			rec.Err = fmt.Errorf("dispatch panic: %v", r)
			if rec.Transcript == "" {
				rec.Outcome = OutcomeTranscriptionError
			} else {
				rec.Outcome = OutcomeAgentError
			}
		}
	}()

	path := p.ArtifactPath(job.SessionID)
	if err := encoder.WriteFile(path, job.SampleRate, job.Frames); err != nil {
		rec.Outcome = OutcomeEncodeError
		rec.Err = err
		return
	}
	log.Debug("Artifact written", "path", path, "audio", job.Duration())
	if !p.cfg.KeepArtifacts {
		defer os.Remove(path)
	}

	start := time.Now()
	transcript, err := p.transcriber.TranscribeFile(ctx, path)
	metrics.ObserveSince(ctx, p.metrics.STTDuration, start)
	if err != nil {
		rec.Outcome = OutcomeTranscriptionError
		rec.Err = fmt.Errorf("transcription failed: %w", err)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		rec.Outcome = OutcomeNotUnderstood
		return
	}
	rec.Transcript = transcript
	log.Info("Transcript", "text", transcript)

	start = time.Now()
	reply, err := p.agent.Send(ctx, transcript)
	metrics.ObserveSince(ctx, p.metrics.AgentDuration, start)
	if err != nil {
		rec.Err = err
		if errors.Is(err, agent.ErrTimeout) {
			rec.Outcome = OutcomeTimeout
		} else {
			rec.Outcome = OutcomeAgentError
		}
		return
	}

	rec.Reply = agent.CleanReply(reply)
	if rec.Reply == "" {
		rec.Outcome = OutcomeEmptyReply
		return
	}
	rec.Outcome = OutcomeOK
}
