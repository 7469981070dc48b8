package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

var (
	// ErrBlocklistNotFound is returned when a blocklist is not found.
	ErrBlocklistNotFound = errors.New("blocklist not found")
	// ErrBlocklistExists is returned when a blocklist name is already taken.
	ErrBlocklistExists = errors.New("blocklist with this name already exists")
	// ErrSirenExists is returned when a siren is already in the blocklist.
	ErrSirenExists = errors.New("siren already in blocklist")
	// ErrSirenNotFound is returned when a siren is not in the blocklist.
	ErrSirenNotFound = errors.New("siren not in blocklist")
)

// CreateBlocklist inserts b together with any sirens it already carries.
// Generates an ID when empty and sets timestamps.
func (db *DB) CreateBlocklist(b *Blocklist) error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Second)
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Sirens = siren.Merge(b.Sirens)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin create blocklist: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO blocklists (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, b.ID, b.Name, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrBlocklistExists
		}
		return fmt.Errorf("creating blocklist: %w", err)
	}

	pos := 0
	for _, e := range entriesOf(b.Sirens) {
		if _, err := tx.Exec(`
			INSERT INTO blocklist_sirens (blocklist_id, category, identifier, label, position)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID, string(e.Category), e.Identifier, e.Label, pos); err != nil {
			return fmt.Errorf("adding siren %s/%s: %w", e.Category, e.Identifier, err)
		}
		pos++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create blocklist: %w", err)
	}
	return nil
}

// GetBlocklist retrieves a blocklist and its sirens by ID.
func (db *DB) GetBlocklist(id string) (*Blocklist, error) {
	row := db.QueryRow(`
		SELECT id, name, created_at, updated_at FROM blocklists WHERE id = ?
	`, id)
	b, err := scanBlocklist(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadSirens(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBlocklistByName retrieves a blocklist by its unique name.
func (db *DB) GetBlocklistByName(name string) (*Blocklist, error) {
	row := db.QueryRow(`
		SELECT id, name, created_at, updated_at FROM blocklists WHERE name = ?
	`, strings.TrimSpace(name))
	b, err := scanBlocklist(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadSirens(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBlocklists returns all blocklists ordered by name.
func (db *DB) ListBlocklists() ([]*Blocklist, error) {
	rows, err := db.Query(`
		SELECT id, name, created_at, updated_at FROM blocklists ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying blocklists: %w", err)
	}
	var lists []*Blocklist
	for rows.Next() {
		b := &Blocklist{}
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.Name, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning blocklist row: %w", err)
		}
		if err := parseBlocklistTimes(b, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		lists = append(lists, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating blocklists: %w", err)
	}
	rows.Close()

	// Loaded after the cursor is closed: the pool holds a single connection.
	for _, b := range lists {
		if err := db.loadSirens(b); err != nil {
			return nil, err
		}
	}
	return lists, nil
}

// RenameBlocklist changes a blocklist name.
func (db *DB) RenameBlocklist(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	result, err := db.Exec(`
		UPDATE blocklists SET name = ?, updated_at = ? WHERE id = ?
	`, name, formatTime(time.Now()), id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrBlocklistExists
		}
		return fmt.Errorf("renaming blocklist: %w", err)
	}
	return requireAffected(result, ErrBlocklistNotFound)
}

// DeleteBlocklist removes a blocklist and its sirens.
func (db *DB) DeleteBlocklist(id string) error {
	result, err := db.Exec(`DELETE FROM blocklists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting blocklist: %w", err)
	}
	return requireAffected(result, ErrBlocklistNotFound)
}

// AddSiren appends an entry to the end of a blocklist.
func (db *DB) AddSiren(blocklistID string, e SirenEntry) error {
	e.Identifier = strings.TrimSpace(e.Identifier)
	if e.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if _, err := siren.ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if _, err := db.GetBlocklist(blocklistID); err != nil {
		return err
	}

	_, err := db.Exec(`
		INSERT INTO blocklist_sirens (blocklist_id, category, identifier, label, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM blocklist_sirens WHERE blocklist_id = ?))
	`, blocklistID, string(e.Category), e.Identifier, e.Label, blocklistID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSirenExists
		}
		return fmt.Errorf("adding siren: %w", err)
	}
	return db.touchBlocklist(blocklistID)
}

// RemoveSiren removes an entry from a blocklist.
func (db *DB) RemoveSiren(blocklistID string, category siren.Category, identifier string) error {
	result, err := db.Exec(`
		DELETE FROM blocklist_sirens WHERE blocklist_id = ? AND category = ? AND identifier = ?
	`, blocklistID, string(category), identifier)
	if err != nil {
		return fmt.Errorf("removing siren: %w", err)
	}
	if err := requireAffected(result, ErrSirenNotFound); err != nil {
		return err
	}
	return db.touchBlocklist(blocklistID)
}

// BlocklistEntries returns the rows of a blocklist in insertion order.
func (db *DB) BlocklistEntries(blocklistID string) ([]SirenEntry, error) {
	rows, err := db.Query(`
		SELECT category, identifier, label, position
		FROM blocklist_sirens
		WHERE blocklist_id = ?
		ORDER BY position ASC
	`, blocklistID)
	if err != nil {
		return nil, fmt.Errorf("querying blocklist sirens: %w", err)
	}
	defer rows.Close()

	var entries []SirenEntry
	for rows.Next() {
		var e SirenEntry
		var cat string
		if err := rows.Scan(&cat, &e.Identifier, &e.Label, &e.Position); err != nil {
			return nil, fmt.Errorf("scanning siren row: %w", err)
		}
		e.Category = siren.Category(cat)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sirens: %w", err)
	}
	return entries, nil
}

// BlocklistSirens returns one Sirens aggregate per blocklist ID, in order.
func (db *DB) BlocklistSirens(ids ...string) ([]siren.Sirens, error) {
	out := make([]siren.Sirens, 0, len(ids))
	for _, id := range ids {
		entries, err := db.BlocklistEntries(id)
		if err != nil {
			return nil, err
		}
		out = append(out, sirensOf(entries))
	}
	return out, nil
}

func (db *DB) loadSirens(b *Blocklist) error {
	entries, err := db.BlocklistEntries(b.ID)
	if err != nil {
		return err
	}
	b.Sirens = sirensOf(entries)
	return nil
}

func (db *DB) touchBlocklist(id string) error {
	_, err := db.Exec(`UPDATE blocklists SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touching blocklist: %w", err)
	}
	return nil
}

func sirensOf(entries []SirenEntry) siren.Sirens {
	s := siren.Empty()
	for _, e := range entries {
		if e.Category == siren.CategoryAndroid {
			s.Android = append(s.Android, siren.AndroidApp{PackageName: e.Identifier, AppName: e.Label})
			continue
		}
		s.Add(e.Category, e.Identifier)
	}
	return s
}

func entriesOf(s siren.Sirens) []SirenEntry {
	var out []SirenEntry
	for _, app := range s.Android {
		out = append(out, SirenEntry{Category: siren.CategoryAndroid, Identifier: app.PackageName, Label: app.AppName})
	}
	for _, c := range siren.Categories() {
		if c == siren.CategoryAndroid {
			continue
		}
		for _, id := range s.IDs(c) {
			out = append(out, SirenEntry{Category: c, Identifier: id})
		}
	}
	return out
}

func scanBlocklist(row *sql.Row) (*Blocklist, error) {
	b := &Blocklist{}
	var createdAt, updatedAt string
	if err := row.Scan(&b.ID, &b.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBlocklistNotFound
		}
		return nil, fmt.Errorf("scanning blocklist: %w", err)
	}
	if err := parseBlocklistTimes(b, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return b, nil
}

func parseBlocklistTimes(b *Blocklist, createdAt, updatedAt string) error {
	var err error
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return fmt.Errorf("parsing updated_at: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
