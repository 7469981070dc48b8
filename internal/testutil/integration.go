package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/tiedsiren/tiedsiren/internal/db"
)

// Harness is a lightweight integration test environment.
//
// It provisions a temp home with a `.tiedsiren` data dir holding state.db and
// the lookout spool. Cleanup is automatic via t.Cleanup.
type Harness struct {
	T        *testing.T
	HomeDir  string
	DataDir  string
	SpoolDir string
	DBPath   string
	DB       *db.DB
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()

	home := t.TempDir()
	dataDir := filepath.Join(home, ".tiedsiren")
	spoolDir := filepath.Join(dataDir, "spool")
	if err := os.MkdirAll(spoolDir, 0750); err != nil {
		t.Fatalf("NewHarness: mkdir spool: %v", err)
	}

	dbPath := filepath.Join(dataDir, "state.db")
	database := NewTestDBAtPath(t, dbPath)

	return &Harness{
		T:        t,
		HomeDir:  home,
		DataDir:  dataDir,
		SpoolDir: spoolDir,
		DBPath:   dbPath,
		DB:       database,
	}
}

func (h *Harness) String() string {
	if h == nil {
		return "Harness<nil>"
	}
	return fmt.Sprintf("Harness(data=%s, db=%s)", h.DataDir, h.DBPath)
}
