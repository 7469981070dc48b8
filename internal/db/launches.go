package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// RecordLaunch stores a blocked launch.
func (db *DB) RecordLaunch(e *LaunchEvent) error {
	e.Identifier = strings.TrimSpace(e.Identifier)
	if e.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = time.Now()
	}
	e.DetectedAt = e.DetectedAt.UTC().Truncate(time.Second)

	_, err := db.Exec(`
		INSERT INTO launch_events (id, identifier, category, detected_at) VALUES (?, ?, ?, ?)
	`, e.ID, e.Identifier, string(e.Category), formatTime(e.DetectedAt))
	if err != nil {
		return fmt.Errorf("recording launch: %w", err)
	}
	return nil
}

// ListLaunches returns the most recent launches, newest first. limit <= 0 means all.
func (db *DB) ListLaunches(limit int) ([]*LaunchEvent, error) {
	query := `SELECT id, identifier, category, detected_at FROM launch_events ORDER BY detected_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying launches: %w", err)
	}
	defer rows.Close()

	var events []*LaunchEvent
	for rows.Next() {
		e := &LaunchEvent{}
		var cat, detectedAt string
		if err := rows.Scan(&e.ID, &e.Identifier, &cat, &detectedAt); err != nil {
			return nil, fmt.Errorf("scanning launch row: %w", err)
		}
		e.Category = siren.Category(cat)
		if e.DetectedAt, err = time.Parse(time.RFC3339, detectedAt); err != nil {
			return nil, fmt.Errorf("parsing detected_at: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating launches: %w", err)
	}
	return events, nil
}

// PruneLaunches deletes launches detected before cutoff and returns the count.
func (db *DB) PruneLaunches(cutoff time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM launch_events WHERE detected_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning launches: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
