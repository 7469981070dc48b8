package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(DefaultConfig) unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.General.DefaultSessionMinutes = 0
	cfg.Daemon.ExpiryCheckSeconds = 0
	cfg.Daemon.LogLevel = "loud"
	cfg.Notifications.CooldownSeconds = -1
	cfg.History.RetentionDays = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"default_session_minutes", "expiry_check_seconds", "log_level", "cooldown_seconds", "retention_days"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoad_Precedence_DefaultsUserProjectEnvFlags(t *testing.T) {
	userHome := t.TempDir()
	t.Setenv("HOME", userHome)

	home := t.TempDir()

	userPath := filepath.Join(userHome, ".tiedsiren", "config.toml")
	if err := WriteValue(userPath, "general.default_session_minutes", 30); err != nil {
		t.Fatalf("WriteValue user: %v", err)
	}
	if err := WriteValue(userPath, "history.retention_days", 7); err != nil {
		t.Fatalf("WriteValue user: %v", err)
	}

	projectPath := filepath.Join(home, ".tiedsiren", "config.toml")
	if err := WriteValue(projectPath, "general.default_session_minutes", 45); err != nil {
		t.Fatalf("WriteValue project: %v", err)
	}

	t.Setenv("TIEDSIREN_SESSION_MINUTES", "90")

	cfg, err := Load(LoadOptions{HomeDir: home})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.DefaultSessionMinutes != 90 {
		t.Fatalf("default_session_minutes=%d want 90 (env)", cfg.General.DefaultSessionMinutes)
	}
	if cfg.History.RetentionDays != 7 {
		t.Fatalf("retention_days=%d want 7 (user file)", cfg.History.RetentionDays)
	}

	cfg, err = Load(LoadOptions{
		HomeDir: home,
		FlagOverrides: map[string]any{
			"general.default_session_minutes": 120,
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.DefaultSessionMinutes != 120 {
		t.Fatalf("default_session_minutes=%d want 120 (flag)", cfg.General.DefaultSessionMinutes)
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	userHome := t.TempDir()
	t.Setenv("HOME", userHome)
	home := t.TempDir()

	if err := WriteValue(filepath.Join(userHome, ".tiedsiren", "config.toml"), "daemon.log_level", "warn"); err != nil {
		t.Fatalf("WriteValue user: %v", err)
	}
	if err := WriteValue(filepath.Join(home, ".tiedsiren", "config.toml"), "daemon.log_level", "debug"); err != nil {
		t.Fatalf("WriteValue project: %v", err)
	}

	cfg, err := Load(LoadOptions{HomeDir: home})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Fatalf("log_level=%q want debug", cfg.Daemon.LogLevel)
	}
}

func TestLoad_ConfigPathOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	custom := filepath.Join(t.TempDir(), "custom.toml")
	if err := WriteValue(custom, "general.default_strict_mode", true); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}

	cfg, err := Load(LoadOptions{HomeDir: t.TempDir(), ConfigPath: custom})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.General.DefaultStrictMode {
		t.Fatalf("expected strict mode from custom config")
	}
}

func TestLoad_InvalidEnvValueErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TIEDSIREN_SESSION_MINUTES", "not-an-int")
	if _, err := Load(LoadOptions{HomeDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_InvalidValueFailsValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(LoadOptions{
		HomeDir:       t.TempDir(),
		FlagOverrides: map[string]any{"daemon.expiry_check_seconds": 0},
	})
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeConfigFile(t *testing.T) {
	v := newTestViper()

	if err := mergeConfigFile(v, ""); err != nil {
		t.Fatalf("mergeConfigFile(empty): %v", err)
	}

	if err := mergeConfigFile(v, filepath.Join(t.TempDir(), "missing.toml")); err != nil {
		t.Fatalf("mergeConfigFile(missing): %v", err)
	}

	if err := mergeConfigFile(v, t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path")
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("general = [\n"), 0644); err != nil {
		t.Fatalf("write invalid toml: %v", err)
	}
	if err := mergeConfigFile(v, path); err == nil {
		t.Fatalf("expected error for invalid toml")
	}
}

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestConfigPathsAndProjectConfigPath(t *testing.T) {
	userHome := t.TempDir()
	t.Setenv("HOME", userHome)

	u, p := ConfigPaths("/home/me", "")
	if u != filepath.Join(userHome, ".tiedsiren", "config.toml") {
		t.Fatalf("unexpected user path: %q", u)
	}
	if p != filepath.Join("/home/me", ".tiedsiren", "config.toml") {
		t.Fatalf("unexpected project path: %q", p)
	}

	if got := projectConfigPath("", ""); got != ".tiedsiren/config.toml" {
		t.Fatalf("projectConfigPath(empty)=%q", got)
	}
	if got := projectConfigPath("/home/me", "/override.toml"); got != "/override.toml" {
		t.Fatalf("projectConfigPath(override)=%q", got)
	}
}

func TestSpoolDir(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.SpoolDir("/data"); got != filepath.Join("/data", "spool") {
		t.Fatalf("default spool dir=%q", got)
	}
	cfg.Daemon.SpoolDir = "/var/spool/tiedsiren"
	if got := cfg.SpoolDir("/data"); got != "/var/spool/tiedsiren" {
		t.Fatalf("configured spool dir=%q", got)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("general.default_session_minutes", "25")
	if err != nil {
		t.Fatalf("ParseValue int: %v", err)
	}
	if v.(int) != 25 {
		t.Fatalf("unexpected value: %#v", v)
	}

	v, err = ParseValue("general.default_strict_mode", "true")
	if err != nil {
		t.Fatalf("ParseValue bool: %v", err)
	}
	if v.(bool) != true {
		t.Fatalf("unexpected value: %#v", v)
	}

	v, err = ParseValue("daemon.spool_dir", " /tmp/spool ")
	if err != nil {
		t.Fatalf("ParseValue string: %v", err)
	}
	if v.(string) != "/tmp/spool" {
		t.Fatalf("unexpected value: %#v", v)
	}

	if _, err := ParseValue("history.retention_days", "forever"); err == nil {
		t.Fatalf("expected error for non-integer")
	}
	if _, err := ParseValue("daemon.use_file_watcher", "sometimes"); err == nil {
		t.Fatalf("expected error for non-boolean")
	}
	if _, err := parseValueByKind("x", valueKind(123)); err == nil {
		t.Fatalf("expected error for unsupported value kind")
	}
	if _, err := ParseValue("nope.nope", "x"); err == nil {
		t.Fatalf("expected unsupported key error")
	}
}

func TestGetValue(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		key  string
		want any
	}{
		{"general.default_session_minutes", cfg.General.DefaultSessionMinutes},
		{"general.default_strict_mode", cfg.General.DefaultStrictMode},
		{"daemon.spool_dir", cfg.Daemon.SpoolDir},
		{"daemon.expiry_check_seconds", cfg.Daemon.ExpiryCheckSeconds},
		{"daemon.use_file_watcher", cfg.Daemon.UseFileWatcher},
		{"daemon.log_level", cfg.Daemon.LogLevel},
		{"notifications.desktop_enabled", cfg.Notifications.DesktopEnabled},
		{"notifications.cooldown_seconds", cfg.Notifications.CooldownSeconds},
		{"history.retention_days", cfg.History.RetentionDays},

		{"general", cfg.General},
		{"daemon", cfg.Daemon},
		{"notifications", cfg.Notifications},
		{"history", cfg.History},
	}

	for _, tc := range cases {
		got, ok := GetValue(cfg, tc.key)
		if !ok {
			t.Fatalf("GetValue(%q) not found", tc.key)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("GetValue(%q)=%#v want %#v", tc.key, got, tc.want)
		}
	}

	for _, key := range []string{"", "nope", "general.nope", "daemon.nope", "notifications.nope", "history.nope"} {
		if _, ok := GetValue(cfg, key); ok {
			t.Fatalf("expected %q to be not found", key)
		}
	}
}

func TestKeys_AllReadable(t *testing.T) {
	cfg := DefaultConfig()
	for _, key := range Keys() {
		if _, ok := GetValue(cfg, key); !ok {
			t.Fatalf("settable key %q is not readable", key)
		}
		if _, ok := envKeys[key]; !ok {
			t.Fatalf("settable key %q has no env binding", key)
		}
	}
}

func TestWriteValue(t *testing.T) {
	if err := WriteValue("", "general.default_session_minutes", 2); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := WriteValue(filepath.Join(t.TempDir(), "c.toml"), "flat", 2); err == nil {
		t.Fatalf("expected error for key without section")
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteValue(path, "general.default_session_minutes", 25); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	if err := WriteValue(path, "daemon.log_level", "debug"); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	for _, want := range []string{"[general]", "default_session_minutes = 25", "[daemon]", `log_level = "debug"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("toml %q missing %q", text, want)
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("general = \"oops\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteValue(bad, "general.default_session_minutes", 2); err == nil {
		t.Fatalf("expected error when general is not a table")
	}
}

func TestWriteValue_DecodeExistingInvalidTOMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("general = [\n"), 0644); err != nil {
		t.Fatalf("write invalid toml: %v", err)
	}
	if err := WriteValue(path, "general.default_session_minutes", 2); err == nil {
		t.Fatalf("expected decode error")
	} else if !strings.Contains(err.Error(), "decode config") {
		t.Fatalf("unexpected error: %v", err)
	}
}
