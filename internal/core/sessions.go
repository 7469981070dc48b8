package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/db"
)

// SessionSummary is a serializable view of a block session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	StrictMode   bool      `json:"strict_mode"`
	BlocklistIDs []string  `json:"blocklist_ids"`
}

// Summarize converts a stored session into a summary.
func Summarize(s *db.BlockSession) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Name:         s.Name,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
		StrictMode:   s.StrictMode,
		BlocklistIDs: append([]string(nil), s.BlocklistIDs...),
	}
}

// StartOptions configures a new block session.
type StartOptions struct {
	Name string
	// Blocklists are blocklist IDs or names.
	Blocklists []string
	// StartsAt defaults to Now.
	StartsAt   time.Time
	Duration   time.Duration
	StrictMode bool
	// Now defaults to time.Now.
	Now time.Time
}

// StartSession validates opts and stores a new session.
//
// Blocklists may be referenced by ID or by name; every one must exist.
func StartSession(dbConn *db.DB, opts StartOptions) (*db.BlockSession, error) {
	if dbConn == nil {
		return nil, fmt.Errorf("dbConn is required")
	}
	if len(opts.Blocklists) == 0 {
		return nil, fmt.Errorf("at least one blocklist is required")
	}
	if opts.Duration < time.Second {
		return nil, fmt.Errorf("duration must be at least 1s, got %s", opts.Duration)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	start := opts.StartsAt
	if start.IsZero() {
		start = now
	}

	ids := make([]string, 0, len(opts.Blocklists))
	for _, ref := range opts.Blocklists {
		b, err := ResolveBlocklist(dbConn, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, b.ID)
	}

	s := &db.BlockSession{
		Name:         opts.Name,
		StartsAt:     start,
		EndsAt:       start.Add(opts.Duration),
		StrictMode:   opts.StrictMode,
		BlocklistIDs: ids,
	}
	if err := dbConn.CreateBlockSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

// EndSession ends a session at now. A strict-mode session that has not
// reached its end time cannot be ended.
func EndSession(dbConn *db.DB, id string, now time.Time) (*db.BlockSession, error) {
	s, err := dbConn.GetBlockSession(id)
	if err != nil {
		return nil, err
	}
	if s.EndedAt != nil {
		return nil, fmt.Errorf("%w: already ended", db.ErrBlockSessionNotFound)
	}
	if s.StrictMode && now.Before(s.EndsAt) {
		return nil, fmt.Errorf("%w: ends at %s", ErrStrictModeActive, s.EndsAt.Format(time.RFC3339))
	}
	if err := dbConn.EndBlockSession(id, now); err != nil {
		return nil, err
	}
	return dbConn.GetBlockSession(id)
}

// ExpireOptions configures ending sessions that ran out.
type ExpireOptions struct {
	Now    time.Time
	DryRun bool
}

// ExpireResult reports which sessions were ended.
type ExpireResult struct {
	Now        time.Time
	Sessions   []SessionSummary
	EndedIDs   []string
	SkippedIDs []string
}

// ExpireSessions finds sessions past their end time and ends them unless
// DryRun is set. Sessions ended concurrently are reported as skipped.
func ExpireSessions(dbConn *db.DB, opts ExpireOptions) (*ExpireResult, error) {
	if dbConn == nil {
		return nil, fmt.Errorf("dbConn is required")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	res := &ExpireResult{Now: now}

	expired, err := dbConn.FindExpiredBlockSessions(now)
	if err != nil {
		return nil, err
	}
	for _, s := range expired {
		res.Sessions = append(res.Sessions, Summarize(s))
	}

	if opts.DryRun || len(res.Sessions) == 0 {
		return res, nil
	}

	for _, s := range res.Sessions {
		if err := dbConn.EndBlockSession(s.ID, s.EndsAt); err != nil {
			if errors.Is(err, db.ErrBlockSessionNotFound) {
				res.SkippedIDs = append(res.SkippedIDs, s.ID)
				continue
			}
			return nil, err
		}
		res.EndedIDs = append(res.EndedIDs, s.ID)
	}
	return res, nil
}

// Status is the blocking state at a point in time.
type Status struct {
	Phase    Phase            `json:"phase"`
	Now      time.Time        `json:"now"`
	Sessions []SessionSummary `json:"sessions"`
	Watched  int              `json:"watched_sirens"`
	Locked   int              `json:"locked_sirens"`
}

// StatusAt reports the phase, active sessions and siren counts at now.
func StatusAt(dbConn *db.DB, now time.Time) (*Status, error) {
	active, err := dbConn.ListActiveBlockSessions(now)
	if err != nil {
		return nil, err
	}
	watched, err := WatchedSirens(dbConn, now)
	if err != nil {
		return nil, err
	}
	locked, err := LockedSirensAt(dbConn, now)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Phase:    PhaseAt(active, now),
		Now:      now,
		Sessions: make([]SessionSummary, 0, len(active)),
		Watched:  watched.Len(),
		Locked:   locked.Len(),
	}
	for _, s := range active {
		st.Sessions = append(st.Sessions, Summarize(s))
	}
	return st, nil
}

// ResolveBlocklist finds a blocklist by ID, falling back to its name.
func ResolveBlocklist(dbConn *db.DB, ref string) (*db.Blocklist, error) {
	b, err := dbConn.GetBlocklist(ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, db.ErrBlocklistNotFound) {
		return nil, err
	}
	b, err = dbConn.GetBlocklistByName(ref)
	if err != nil {
		if errors.Is(err, db.ErrBlocklistNotFound) {
			if hint := SuggestBlocklist(dbConn, ref); hint != "" {
				return nil, fmt.Errorf("%w: %s (did you mean %q?)", db.ErrBlocklistNotFound, ref, hint)
			}
			return nil, fmt.Errorf("%w: %s", db.ErrBlocklistNotFound, ref)
		}
		return nil, err
	}
	return b, nil
}
