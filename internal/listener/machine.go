package listener

import (
	"context"
	"sync"
	"time"

	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/dispatch"
	"github.com/msto63/voicelistener/internal/listener/vad"
	"github.com/msto63/voicelistener/internal/listener/wakeword"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// Submitter accepts a finished capture without blocking
type Submitter interface {
	Submit(job dispatch.Job)
}

// Event kinds
const (
	EventWake       = "wake"
	EventSessionEnd = "session_end"
)

// Event describes a machine transition for observers
type Event struct {
	Kind      string        `json:"kind"`
	At        time.Time     `json:"at"`
	SessionID string        `json:"session_id"`
	Phrase    string        `json:"phrase,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Frames    int           `json:"frames,omitempty"`
	Audio     time.Duration `json:"audio,omitempty"`
}

// MachineDeps are the collaborators of a Machine
type MachineDeps struct {
	VAD       vad.Detector
	Spotter   wakeword.Spotter
	Lexicon   *wakeword.Lexicon
	Speaker   dispatch.Speaker
	Submitter Submitter
	Clock     Clock
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Machine is the turn-taking state machine. HandleFrame must be called
// from a single goroutine; Mode and Session may be called from any.
type Machine struct {
	timing  Timing
	phrases dispatch.Phrases

	vad       vad.Detector
	spotter   wakeword.Spotter
	lexicon   *wakeword.Lexicon
	speaker   dispatch.Speaker
	submitter Submitter
	clock     Clock
	metrics   *metrics.Metrics
	logger    *logging.Logger

	state *StateMachine

	mu        sync.Mutex
	session   *Session
	observers []func(Event)
}

// NewMachine creates a machine in ModeStandby
func NewMachine(timing Timing, phrases dispatch.Phrases, deps MachineDeps) *Machine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Lexicon == nil {
		deps.Lexicon = wakeword.NewLexicon()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	return &Machine{
		timing:    timing,
		phrases:   phrases,
		vad:       deps.VAD,
		spotter:   deps.Spotter,
		lexicon:   deps.Lexicon,
		speaker:   deps.Speaker,
		submitter: deps.Submitter,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		state:     NewStateMachine(deps.Clock.Now()),
	}
}

// Mode returns the current mode
func (m *Machine) Mode() Mode {
	return m.state.Current()
}

// State exposes the underlying state machine for listeners
func (m *Machine) State() *StateMachine {
	return m.state
}

// Session returns a snapshot of the live session
func (m *Machine) Session() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return SessionInfo{}, false
	}
	return m.session.info(m.timing.SampleRate), true
}

// OnEvent registers an observer. Observers run on the HandleFrame goroutine.
func (m *Machine) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// HandleFrame processes one frame
func (m *Machine) HandleFrame(ctx context.Context, f audio.Frame) {
	now := m.clock.Now()
	m.metrics.Frames.Add(ctx, 1)

	speech := m.classify(ctx, f)

	switch m.state.Current() {
	case ModeStandby:
		m.spot(ctx, f, now)

	case ModeListening:
		m.mu.Lock()
		s := m.session
		s.append(f)
		if speech {
			s.LastSpeech = now
		}
		reason, done := s.endReason(now, m.timing)
		m.mu.Unlock()

		if speech {
			m.logger.Debug("Speech", "session", s.ID, "frame", f.Seq)
		}
		if done {
			m.finish(ctx, now, reason)
		}
	}
}

// classify feeds the VAD. A detector error counts as non-speech.
func (m *Machine) classify(ctx context.Context, f audio.Frame) bool {
	if err := m.vad.AcceptFrame(f.Samples); err != nil {
		m.metrics.RecordDetectorError(ctx, "vad")
		m.logger.Debug("VAD error, treating frame as silence", "frame", f.Seq, "error", err)
		return false
	}
	return m.vad.IsSpeechActive()
}

// spot feeds the keyword spotter and opens a session on a lexicon match.
// Spotter errors count as no detection.
func (m *Machine) spot(ctx context.Context, f audio.Frame, now time.Time) {
	if err := m.spotter.AcceptFrame(m.timing.SampleRate, f.Samples); err != nil {
		m.spotterError(ctx, f, err)
		return
	}

	for m.spotter.HasPendingResult() {
		if err := m.spotter.DecodeNext(); err != nil {
			m.spotterError(ctx, f, err)
			return
		}
		result, ok := m.spotter.TakeResult()
		if !ok {
			continue
		}

		phrase, ok := m.lexicon.Match(result)
		if !ok {
			m.logger.Debug("Keyword not in lexicon", "result", result)
			m.resetSpotter(ctx)
			return
		}
		m.wake(ctx, phrase, now)
		return
	}
}

func (m *Machine) spotterError(ctx context.Context, f audio.Frame, err error) {
	m.metrics.RecordDetectorError(ctx, "kws")
	m.logger.Debug("Keyword spotter error, no detection", "frame", f.Seq, "error", err)
}

func (m *Machine) resetSpotter(ctx context.Context) {
	if err := m.spotter.ResetStream(); err != nil {
		m.metrics.RecordDetectorError(ctx, "kws")
		m.logger.Warn("Failed to reset keyword stream", "error", err)
	}
}

func (m *Machine) wake(ctx context.Context, phrase string, now time.Time) {
	s := newSession(phrase, now)

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.state.Transition(ModeListening, now)
	m.resetSpotter(ctx)
	m.speaker.Speak(m.phrases.WakeAck)

	m.metrics.RecordWake(ctx, phrase)
	m.logger.Info("Wake phrase detected", "phrase", phrase, "session", s.ID)
	m.emit(Event{Kind: EventWake, At: now, SessionID: s.ID, Phrase: phrase})
}

// finish hands the session's frames to the submitter and returns to standby
func (m *Machine) finish(ctx context.Context, now time.Time, reason string) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	m.state.Transition(ModeStandby, now)
	m.speaker.Speak(m.phrases.CaptureAck)

	job := dispatch.Job{
		SessionID:  s.ID,
		Frames:     s.Frames,
		SampleRate: m.timing.SampleRate,
		Start:      s.Start,
		End:        now,
		Reason:     reason,
	}
	elapsed := now.Sub(s.Start)
	m.metrics.RecordSession(ctx, reason, elapsed)
	m.logger.Info("Capture complete",
		"session", s.ID,
		"reason", reason,
		"frames", len(s.Frames),
		"elapsed", elapsed,
	)
	m.emit(Event{
		Kind:      EventSessionEnd,
		At:        now,
		SessionID: s.ID,
		Reason:    reason,
		Frames:    len(s.Frames),
		Audio:     job.Duration(),
	})

	m.submitter.Submit(job)
}

func (m *Machine) emit(e Event) {
	m.mu.Lock()
	observers := m.observers
	m.mu.Unlock()
	for _, fn := range observers {
		fn(e)
	}
}
