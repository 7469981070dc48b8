package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// BlocklistOption customizes a test blocklist.
type BlocklistOption func(*db.Blocklist)

// SessionOption customizes a test block session.
type SessionOption func(*db.BlockSession)

// MakeBlocklist creates and inserts a blocklist into the DB.
func MakeBlocklist(t *testing.T, database *db.DB, opts ...BlocklistOption) *db.Blocklist {
	t.Helper()

	b := &db.Blocklist{
		Name:   "list-" + randHex(6),
		Sirens: siren.Empty(),
	}
	for _, opt := range opts {
		opt(b)
	}
	RequireNoError(t, database.CreateBlocklist(b), "create blocklist")
	return b
}

// MakeSession creates a session over the given blocklists. By default it
// started a minute ago and ends in an hour, without strict mode.
func MakeSession(t *testing.T, database *db.DB, lists []*db.Blocklist, opts ...SessionOption) *db.BlockSession {
	t.Helper()

	now := time.Now().UTC()
	s := &db.BlockSession{
		Name:     "session-" + randHex(4),
		StartsAt: now.Add(-time.Minute),
		EndsAt:   now.Add(time.Hour),
	}
	for _, b := range lists {
		s.BlocklistIDs = append(s.BlocklistIDs, b.ID)
	}
	for _, opt := range opts {
		opt(s)
	}
	RequireNoError(t, database.CreateBlockSession(s), "create block session")
	return s
}

// WithName sets the blocklist name.
func WithName(name string) BlocklistOption {
	return func(b *db.Blocklist) { b.Name = name }
}

// WithApps adds android packages.
func WithApps(packages ...string) BlocklistOption {
	return func(b *db.Blocklist) {
		for _, p := range packages {
			b.Sirens.Android = append(b.Sirens.Android, siren.AndroidApp{PackageName: p})
		}
	}
}

// WithWebsites adds websites.
func WithWebsites(sites ...string) BlocklistOption {
	return func(b *db.Blocklist) { b.Sirens.Websites = append(b.Sirens.Websites, sites...) }
}

// WithKeywords adds keywords.
func WithKeywords(words ...string) BlocklistOption {
	return func(b *db.Blocklist) { b.Sirens.Keywords = append(b.Sirens.Keywords, words...) }
}

// WithWindows adds windows executables.
func WithWindows(exes ...string) BlocklistOption {
	return func(b *db.Blocklist) { b.Sirens.Windows = append(b.Sirens.Windows, exes...) }
}

// Strict enables strict mode.
func Strict() SessionOption {
	return func(s *db.BlockSession) { s.StrictMode = true }
}

// Window sets the session start and end.
func Window(start, end time.Time) SessionOption {
	return func(s *db.BlockSession) {
		s.StartsAt = start
		s.EndsAt = end
	}
}

// randHex returns a cryptographically random hex string for unique test IDs.
func randHex(n int) string {
	b := make([]byte, (n+1)/2) // Each byte produces 2 hex chars
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)[:n]
}
