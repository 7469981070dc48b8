// Package db provides SQLite persistence for blocklists, block sessions and
// launch events.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	path string
}

// OpenOptions controls how a database is opened.
type OpenOptions struct {
	// CreateIfNotExists creates the parent directory and file when missing.
	CreateIfNotExists bool
	// InitSchema applies migrations after opening.
	InitSchema bool
	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// ErrDatabaseNotFound is returned when the file is missing and creation is disabled.
var ErrDatabaseNotFound = errors.New("database not found")

// Open opens an existing database without migrating it.
func Open(path string) (*DB, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenAndMigrate opens (creating if needed) and migrates the database.
func OpenAndMigrate(path string) (*DB, error) {
	return OpenWithOptions(path, OpenOptions{CreateIfNotExists: true, InitSchema: true})
}

// OpenWithOptions opens the database at path.
func OpenWithOptions(path string, opts OpenOptions) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat database: %w", err)
		}
		if !opts.CreateIfNotExists {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if opts.ReadOnly {
		dsn += "&mode=ro"
	} else {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps pragmas consistent.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	d := &DB{DB: conn, path: path}
	if opts.InitSchema && !opts.ReadOnly {
		if err := d.Migrate(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return d, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// migrations are applied in order; user_version tracks the last applied index+1.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS blocklists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blocklist_sirens (
		blocklist_id TEXT NOT NULL REFERENCES blocklists(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		identifier TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		UNIQUE (blocklist_id, category, identifier)
	);
	CREATE INDEX IF NOT EXISTS idx_blocklist_sirens_list ON blocklist_sirens(blocklist_id, position);

	CREATE TABLE IF NOT EXISTS block_sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		strict_mode INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		ended_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_block_sessions_open ON block_sessions(ended_at, ends_at);

	CREATE TABLE IF NOT EXISTS session_blocklists (
		session_id TEXT NOT NULL REFERENCES block_sessions(id) ON DELETE CASCADE,
		blocklist_id TEXT NOT NULL REFERENCES blocklists(id) ON DELETE CASCADE,
		PRIMARY KEY (session_id, blocklist_id)
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS launch_events (
		id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL,
		category TEXT NOT NULL,
		detected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_launch_events_detected ON launch_events(detected_at);
	`,
}

// Migrate applies pending schema migrations.
func (db *DB) Migrate() error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
