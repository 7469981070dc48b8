package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/testutil"
)

func TestConfigShow_Defaults(t *testing.T) {
	newCLITest(t)

	var cfg config.Config
	mustRunJSON(t, &cfg, "config")
	testutil.RequireEqual(t, config.DefaultConfig().General.DefaultSessionMinutes, cfg.General.DefaultSessionMinutes, "minutes")

	resetFlags(t)
	stdout, _, err := runCLI(t, "config")
	testutil.RequireNoError(t, err, "text config")
	if !strings.Contains(stdout, "general.default_session_minutes = 60") {
		t.Fatalf("unexpected text config %q", stdout)
	}
}

func TestConfigSetGet(t *testing.T) {
	h := newCLITest(t)

	_, _, err := runCLI(t, "config", "set", "general.default_session_minutes", "25")
	testutil.RequireNoError(t, err, "set")

	data, err := os.ReadFile(filepath.Join(h.DataDir, "config.toml"))
	testutil.RequireNoError(t, err, "read config file")
	if !strings.Contains(string(data), "default_session_minutes = 25") {
		t.Fatalf("value not written: %q", data)
	}

	resetFlags(t)
	stdout, _, err := runCLI(t, "config", "get", "general.default_session_minutes")
	testutil.RequireNoError(t, err, "get")
	testutil.RequireEqual(t, "25\n", stdout, "text value")

	var got struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	mustRunJSON(t, &got, "config", "get", "daemon.log_level")
	testutil.RequireEqual(t, "info", got.Value.(string), "json value")
}

func TestConfigSet_Errors(t *testing.T) {
	newCLITest(t)

	_, _, err := runCLI(t, "config", "set", "general.nope", "1")
	if err == nil || !strings.Contains(err.Error(), "unsupported config key") {
		t.Fatalf("expected unsupported key error, got %v", err)
	}

	_, _, err = runCLI(t, "config", "set", "general.default_session_minutes", "many")
	if err == nil || !strings.Contains(err.Error(), "expected integer") {
		t.Fatalf("expected parse error, got %v", err)
	}

	_, _, err = runCLI(t, "config", "set", "daemon.log_level", "chatty")
	if err == nil || !strings.Contains(err.Error(), "rejected daemon.log_level=chatty") {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, _, err = runCLI(t, "config", "get", "daemon.log_level")
	testutil.RequireNoError(t, err, "config still loads after rejected set")

	_, _, err = runCLI(t, "config", "get", "general.nope")
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestConfigSet_GlobalAndOverride(t *testing.T) {
	h := newCLITest(t)
	// The user config lives under HOME; move the data dir elsewhere so the two differ.
	other := t.TempDir()
	flagHome = other

	_, _, err := runCLI(t, "config", "set", "--global", "history.retention_days", "7")
	testutil.RequireNoError(t, err, "set global")
	if _, err := os.Stat(filepath.Join(h.HomeDir, ".tiedsiren", "config.toml")); err != nil {
		t.Fatalf("expected user config written: %v", err)
	}

	resetFlags(t)
	override := filepath.Join(t.TempDir(), "custom.toml")
	_, _, err = runCLI(t, "config", "set", "--config", override, "history.retention_days", "3")
	testutil.RequireNoError(t, err, "set override")

	resetFlags(t)
	stdout, _, err := runCLI(t, "config", "get", "--config", override, "history.retention_days")
	testutil.RequireNoError(t, err, "get override")
	testutil.RequireEqual(t, "3\n", stdout, "override wins over user config")
}

func TestConfigKeys(t *testing.T) {
	newCLITest(t)

	stdout, _, err := runCLI(t, "config", "keys")
	testutil.RequireNoError(t, err, "keys")
	for _, key := range config.Keys() {
		if !strings.Contains(stdout, key) {
			t.Errorf("missing key %s", key)
		}
	}
}
