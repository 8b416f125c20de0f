// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     version
// Description: Central version management for the voice listener
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package version

import "fmt"

// Version constants
const (
	// Listener is the release version of the voice listener
	Listener = "1.0.0"

	// Protocol is the version of the monitor event feed
	Protocol = "1"
)

// Set at build time via -ldflags "-X github.com/msto63/voicelistener/pkg/core/version.Commit=..."
var (
	Commit    = "dev"
	BuildDate = "unknown"
)

// Component returns the version for a named component. All components
// currently share the listener version.
func Component(name string) string {
	switch name {
	case "monitor":
		return Protocol
	default:
		return Listener
	}
}

// String returns a human-readable version line
func String() string {
	return fmt.Sprintf("voicelistener %s (commit %s, built %s)", Listener, Commit, BuildDate)
}
