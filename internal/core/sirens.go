package core

import (
	"fmt"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// WatchedSirens merges the sirens of every blocklist referenced by a session
// active at now. Each blocklist is one merge source, visited in session order.
func WatchedSirens(dbConn *db.DB, now time.Time) (siren.Sirens, error) {
	active, err := dbConn.ListActiveBlockSessions(now)
	if err != nil {
		return siren.Sirens{}, err
	}
	return sirensOf(dbConn, active, false)
}

// LockedSirensAt returns the locked view over blocklists of strict-mode
// sessions active at now. It is nil when no strict-mode session is active.
func LockedSirensAt(dbConn *db.DB, now time.Time) (*siren.LockedSirens, error) {
	active, err := dbConn.ListActiveBlockSessions(now)
	if err != nil {
		return nil, err
	}
	if PhaseAt(active, now) != ActiveLocked {
		return nil, nil
	}
	merged, err := sirensOf(dbConn, active, true)
	if err != nil {
		return nil, err
	}
	locked := siren.Lock(merged)
	return &locked, nil
}

func sirensOf(dbConn *db.DB, sessions []*db.BlockSession, strictOnly bool) (siren.Sirens, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, s := range sessions {
		if strictOnly && !s.StrictMode {
			continue
		}
		for _, id := range s.BlocklistIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sources, err := dbConn.BlocklistSirens(ids...)
	if err != nil {
		return siren.Sirens{}, err
	}
	return siren.Merge(sources...), nil
}

// AddSiren appends a siren to a blocklist. Adding is always allowed, even
// while locked.
func AddSiren(dbConn *db.DB, blocklistRef string, c siren.Category, id, label string) (*db.Blocklist, error) {
	b, err := ResolveBlocklist(dbConn, blocklistRef)
	if err != nil {
		return nil, err
	}
	if err := dbConn.AddSiren(b.ID, db.SirenEntry{Category: c, Identifier: id, Label: label}); err != nil {
		return nil, err
	}
	return dbConn.GetBlocklist(b.ID)
}

// RemoveSiren removes a siren from a blocklist unless it is locked at now.
func RemoveSiren(dbConn *db.DB, blocklistRef string, c siren.Category, id string, now time.Time) (*db.Blocklist, error) {
	b, err := ResolveBlocklist(dbConn, blocklistRef)
	if err != nil {
		return nil, err
	}
	locked, err := LockedSirensAt(dbConn, now)
	if err != nil {
		return nil, err
	}
	if siren.IsLocked(locked, c, id) {
		return nil, fmt.Errorf("%w: %s %s", ErrSirenLocked, c, id)
	}
	if err := dbConn.RemoveSiren(b.ID, c, id); err != nil {
		return nil, err
	}
	return dbConn.GetBlocklist(b.ID)
}

// DeleteBlocklist deletes a blocklist unless an active strict-mode session
// uses it.
func DeleteBlocklist(dbConn *db.DB, blocklistRef string, now time.Time) error {
	b, err := ResolveBlocklist(dbConn, blocklistRef)
	if err != nil {
		return err
	}
	active, err := dbConn.ListActiveBlockSessions(now)
	if err != nil {
		return err
	}
	for _, s := range active {
		if !s.StrictMode {
			continue
		}
		for _, id := range s.BlocklistIDs {
			if id == b.ID {
				return fmt.Errorf("%w: %s (session %s)", ErrBlocklistLocked, b.Name, s.ID)
			}
		}
	}
	return dbConn.DeleteBlocklist(b.ID)
}
