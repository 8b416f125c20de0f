package listener

import (
	"time"

	"github.com/google/uuid"

	"github.com/msto63/voicelistener/internal/listener/audio"
)

// End reasons
const (
	ReasonSilence     = "silence"
	ReasonMaxDuration = "max_duration"
)

// Timing holds the endpointing rules
type Timing struct {
	SampleRate       int
	SilenceThreshold time.Duration
	MaxInteraction   time.Duration
}

// Session is one wake-to-dispatch cycle. It is owned by the Machine.
type Session struct {
	ID         string
	WakePhrase string
	Start      time.Time
	LastSpeech time.Time
	Frames     []audio.Frame
}

// newSession opens a session at now
func newSession(phrase string, now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		WakePhrase: phrase,
		Start:      now,
		LastSpeech: now,
	}
}

// append adds a captured frame
func (s *Session) append(f audio.Frame) {
	s.Frames = append(s.Frames, f)
}

// endReason reports whether the session must end at now, and why. The
// max-duration rule wins when both apply.
func (s *Session) endReason(now time.Time, t Timing) (string, bool) {
	if now.Sub(s.Start) >= t.MaxInteraction {
		return ReasonMaxDuration, true
	}
	if now.Sub(s.LastSpeech) >= t.SilenceThreshold {
		return ReasonSilence, true
	}
	return "", false
}

// SessionInfo is a read-only view of the live session
type SessionInfo struct {
	ID         string        `json:"id"`
	WakePhrase string        `json:"wake_phrase,omitempty"`
	Start      time.Time     `json:"start"`
	LastSpeech time.Time     `json:"last_speech"`
	FrameCount int           `json:"frames"`
	Audio      time.Duration `json:"audio"`
}

func (s *Session) info(sampleRate int) SessionInfo {
	var d time.Duration
	for _, f := range s.Frames {
		d += f.Duration(sampleRate)
	}
	return SessionInfo{
		ID:         s.ID,
		WakePhrase: s.WakePhrase,
		Start:      s.Start,
		LastSpeech: s.LastSpeech,
		FrameCount: len(s.Frames),
		Audio:      d,
	}
}
