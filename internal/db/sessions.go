package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBlockSessionNotFound is returned when a session is not found or already ended.
	ErrBlockSessionNotFound = errors.New("block session not found")
	// ErrInvalidSessionWindow is returned when a session does not end after it starts.
	ErrInvalidSessionWindow = errors.New("session must end after it starts")
)

// CreateBlockSession creates a session and links its blocklists.
// Generates a UUID when ID is empty. Every referenced blocklist must exist.
func (db *DB) CreateBlockSession(s *BlockSession) error {
	if len(s.BlocklistIDs) == 0 {
		return fmt.Errorf("at least one blocklist is required")
	}
	// Times are stored at second precision; validate what will be stored.
	startsAt := s.StartsAt.UTC().Truncate(time.Second)
	endsAt := s.EndsAt.UTC().Truncate(time.Second)
	if !endsAt.After(startsAt) {
		return ErrInvalidSessionWindow
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.StartsAt = startsAt
	s.EndsAt = endsAt
	s.CreatedAt = time.Now().UTC().Truncate(time.Second)
	s.EndedAt = nil

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO block_sessions (id, name, starts_at, ends_at, strict_mode, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`, s.ID, s.Name, formatTime(s.StartsAt), formatTime(s.EndsAt), boolToInt(s.StrictMode), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating block session: %w", err)
	}

	for _, id := range s.BlocklistIDs {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM blocklists WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking blocklist %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrBlocklistNotFound, id)
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO session_blocklists (session_id, blocklist_id) VALUES (?, ?)
		`, s.ID, id); err != nil {
			return fmt.Errorf("linking blocklist %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// GetBlockSession retrieves a session by ID.
func (db *DB) GetBlockSession(id string) (*BlockSession, error) {
	row := db.QueryRow(`
		SELECT id, name, starts_at, ends_at, strict_mode, created_at, ended_at
		FROM block_sessions WHERE id = ?
	`, id)
	s, err := scanBlockSession(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadSessionBlocklists(s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListActiveBlockSessions returns sessions enforcing at now, soonest ending first.
func (db *DB) ListActiveBlockSessions(now time.Time) ([]*BlockSession, error) {
	ts := formatTime(now)
	return db.querySessions(`
		SELECT id, name, starts_at, ends_at, strict_mode, created_at, ended_at
		FROM block_sessions
		WHERE ended_at IS NULL AND starts_at <= ? AND ends_at > ?
		ORDER BY ends_at ASC
	`, ts, ts)
}

// ListBlockSessions returns every session, most recent first.
func (db *DB) ListBlockSessions() ([]*BlockSession, error) {
	return db.querySessions(`
		SELECT id, name, starts_at, ends_at, strict_mode, created_at, ended_at
		FROM block_sessions
		ORDER BY starts_at DESC
	`)
}

// FindExpiredBlockSessions returns sessions past their end time that were never ended.
func (db *DB) FindExpiredBlockSessions(now time.Time) ([]*BlockSession, error) {
	return db.querySessions(`
		SELECT id, name, starts_at, ends_at, strict_mode, created_at, ended_at
		FROM block_sessions
		WHERE ended_at IS NULL AND ends_at <= ?
		ORDER BY ends_at ASC
	`, formatTime(now))
}

// EndBlockSession marks a session as ended by setting ended_at.
func (db *DB) EndBlockSession(id string, at time.Time) error {
	result, err := db.Exec(`
		UPDATE block_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("ending block session: %w", err)
	}
	return requireAffected(result, ErrBlockSessionNotFound)
}

// SessionBlocklistIDs returns the blocklists linked to a session.
func (db *DB) SessionBlocklistIDs(sessionID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT blocklist_id FROM session_blocklists WHERE session_id = ? ORDER BY rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session blocklists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session blocklist: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session blocklists: %w", err)
	}
	return ids, nil
}

func (db *DB) querySessions(query string, args ...any) ([]*BlockSession, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying block sessions: %w", err)
	}
	sessions, err := scanBlockSessions(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if err := db.loadSessionBlocklists(s); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (db *DB) loadSessionBlocklists(s *BlockSession) error {
	ids, err := db.SessionBlocklistIDs(s.ID)
	if err != nil {
		return err
	}
	s.BlocklistIDs = ids
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*BlockSession, error) {
	s := &BlockSession{}
	var startsAt, endsAt, createdAt string
	var strict int
	var endedAt sql.NullString

	if err := row.Scan(&s.ID, &s.Name, &startsAt, &endsAt, &strict, &createdAt, &endedAt); err != nil {
		return nil, err
	}
	s.StrictMode = strict != 0

	var err error
	if s.StartsAt, err = time.Parse(time.RFC3339, startsAt); err != nil {
		return nil, fmt.Errorf("parsing starts_at: %w", err)
	}
	if s.EndsAt, err = time.Parse(time.RFC3339, endsAt); err != nil {
		return nil, fmt.Errorf("parsing ends_at: %w", err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	return s, nil
}

// scanBlockSession scans a single session row.
func scanBlockSession(row *sql.Row) (*BlockSession, error) {
	s, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBlockSessionNotFound
		}
		return nil, fmt.Errorf("scanning block session: %w", err)
	}
	return s, nil
}

// scanBlockSessions scans multiple session rows.
func scanBlockSessions(rows *sql.Rows) ([]*BlockSession, error) {
	var sessions []*BlockSession
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning block session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating block sessions: %w", err)
	}
	return sessions, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
