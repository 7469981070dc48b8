package db

import (
	"time"

	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// Blocklist is a named, user-defined collection of sirens.
type Blocklist struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Sirens    siren.Sirens `json:"sirens"`
}

// SirenEntry is one row of a blocklist.
type SirenEntry struct {
	Category   siren.Category `json:"category"`
	Identifier string         `json:"identifier"`
	// Label is the display name; only meaningful for android apps.
	Label    string `json:"label,omitempty"`
	Position int    `json:"position"`
}

// BlockSession is a time window during which blocklists are enforced.
type BlockSession struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       time.Time  `json:"ends_at"`
	StrictMode   bool       `json:"strict_mode"`
	CreatedAt    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	BlocklistIDs []string   `json:"blocklist_ids"`
}

// IsActiveAt reports whether the session is enforcing at now: started, not
// ended explicitly and not past its end time.
func (s *BlockSession) IsActiveAt(now time.Time) bool {
	if s == nil || s.EndedAt != nil {
		return false
	}
	return !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

// IsExpiredAt reports whether the session reached its end time without being
// ended explicitly.
func (s *BlockSession) IsExpiredAt(now time.Time) bool {
	if s == nil || s.EndedAt != nil {
		return false
	}
	return !now.Before(s.EndsAt)
}

// LaunchEvent records a blocked launch of a watched siren.
type LaunchEvent struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	Category   siren.Category `json:"category"`
	DetectedAt time.Time      `json:"detected_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
