// Package core holds the application services that sit between the
// persistence layer and the state store: session lifecycle, lock checks and
// recomputing what the lookout watches.
package core

import (
	"errors"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/db"
)

var (
	// ErrSirenLocked is returned when a locked siren would be removed.
	ErrSirenLocked = errors.New("siren is locked by a strict-mode session")
	// ErrBlocklistLocked is returned when a blocklist in use by an active
	// strict-mode session would be deleted.
	ErrBlocklistLocked = errors.New("blocklist is locked by a strict-mode session")
	// ErrStrictModeActive is returned when a strict-mode session would be
	// ended before its end time.
	ErrStrictModeActive = errors.New("strict-mode session cannot be ended early")
)

// Phase is the blocking state of the user at a point in time.
type Phase string

const (
	// NoActiveSession means nothing is being blocked.
	NoActiveSession Phase = "no_active_session"
	// ActiveUnlocked means sessions are blocking but sirens may be edited.
	ActiveUnlocked Phase = "active_unlocked"
	// ActiveLocked means at least one strict-mode session is blocking.
	ActiveLocked Phase = "active_locked"
)

// PhaseAt derives the phase from sessions at now. Sessions not active at now
// are ignored.
func PhaseAt(sessions []*db.BlockSession, now time.Time) Phase {
	phase := NoActiveSession
	for _, s := range sessions {
		if !s.IsActiveAt(now) {
			continue
		}
		if s.StrictMode {
			return ActiveLocked
		}
		phase = ActiveUnlocked
	}
	return phase
}
