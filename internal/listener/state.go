// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     listener
// Description: Turn-taking state machine
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package listener

import (
	"sync"
	"time"
)

// Mode is the turn-taking state
type Mode int

const (
	// ModeStandby - Waiting for a wake phrase
	ModeStandby Mode = iota

	// ModeListening - Capturing the user's command
	ModeListening
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "STANDBY"
	case ModeListening:
		return "LISTENING"
	default:
		return "UNKNOWN"
	}
}

// StateMachine manages mode transitions
type StateMachine struct {
	mu        sync.RWMutex
	current   Mode
	enteredAt time.Time
	listeners []StateChangeListener
}

// StateChangeListener is called after the mode changed
type StateChangeListener func(oldMode, newMode Mode, at time.Time)

// NewStateMachine creates a state machine in ModeStandby
func NewStateMachine(at time.Time) *StateMachine {
	return &StateMachine{
		current:   ModeStandby,
		enteredAt: at,
	}
}

// Current returns the current mode
func (sm *StateMachine) Current() Mode {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// EnteredAt returns when the current mode was entered
func (sm *StateMachine) EnteredAt() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.enteredAt
}

// Transition changes to newMode. It returns false for an invalid
// transition, including a transition to the current mode.
func (sm *StateMachine) Transition(newMode Mode, at time.Time) bool {
	sm.mu.Lock()
	oldMode := sm.current

	if !isValidTransition(oldMode, newMode) {
		sm.mu.Unlock()
		return false
	}

	sm.current = newMode
	sm.enteredAt = at
	listeners := sm.listeners
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener(oldMode, newMode, at)
	}

	return true
}

// AddListener adds a mode change listener
func (sm *StateMachine) AddListener(listener StateChangeListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, listener)
}

func isValidTransition(from, to Mode) bool {
	switch from {
	case ModeStandby:
		return to == ModeListening
	case ModeListening:
		return to == ModeStandby
	default:
		return false
	}
}
