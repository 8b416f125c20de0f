// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     dispatch
// Description: Utterance dispatch: encode, transcribe, ask the agent, reply
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package dispatch

import (
	"context"
	"time"

	"github.com/msto63/voicelistener/internal/listener/audio"
)

// Outcome is the result class of one dispatch
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeEmptyReply         Outcome = "empty_reply"
	OutcomeNotUnderstood      Outcome = "not_understood"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeAgentError         Outcome = "agent_error"
	OutcomeTranscriptionError Outcome = "transcription_error"
	OutcomeEncodeError        Outcome = "encode_error"
)

// Failed reports whether the outcome is a failure
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeOK, OutcomeEmptyReply:
		return false
	default:
		return true
	}
}

// Job is one captured utterance handed off by the state machine. Frames is
// owned by the job.
type Job struct {
	SessionID  string
	Frames     []audio.Frame
	SampleRate int
	Start      time.Time
	End        time.Time
	Reason     string
}

// Duration returns the captured audio length
func (j Job) Duration() time.Duration {
	var d time.Duration
	for _, f := range j.Frames {
		d += f.Duration(j.SampleRate)
	}
	return d
}

// Record describes one completed dispatch
type Record struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Reason     string        `json:"reason"`
	Transcript string        `json:"transcript,omitempty"`
	Reply      string        `json:"reply,omitempty"`
	Spoken     string        `json:"spoken,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Phrases are the fixed utterances spoken by the listener
type Phrases struct {
	WakeAck       string `toml:"wake_ack" yaml:"wake_ack"`
	CaptureAck    string `toml:"capture_ack" yaml:"capture_ack"`
	NotUnderstood string `toml:"not_understood" yaml:"not_understood"`
	Timeout       string `toml:"timeout" yaml:"timeout"`
	Error         string `toml:"error" yaml:"error"`
	Done          string `toml:"done" yaml:"done"`
}

// DefaultPhrases returns the English default phrases
func DefaultPhrases() Phrases {
	return Phrases{
		WakeAck:       "I'm here",
		CaptureAck:    "Got it",
		NotUnderstood: "Sorry, I didn't catch that",
		Timeout:       "The request timed out",
		Error:         "Something went wrong",
		Done:          "Done",
	}
}

// For returns the fallback phrase for a non-OK outcome. OutcomeOK and
// OutcomeEncodeError have none.
func (p Phrases) For(o Outcome) string {
	switch o {
	case OutcomeEmptyReply:
		return p.Done
	case OutcomeNotUnderstood:
		return p.NotUnderstood
	case OutcomeTimeout:
		return p.Timeout
	case OutcomeAgentError, OutcomeTranscriptionError:
		return p.Error
	default:
		return ""
	}
}

// Transcriber turns an audio artifact into text
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Agent executes a transcribed command and returns its reply
type Agent interface {
	Send(ctx context.Context, transcript string) (string, error)
}

// Speaker queues an utterance without blocking
type Speaker interface {
	Speak(text string)
}

// Observer is notified after every dispatch
type Observer interface {
	ObserveDispatch(rec Record)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(rec Record)

// ObserveDispatch calls f(rec)
func (f ObserverFunc) ObserveDispatch(rec Record) { f(rec) }
