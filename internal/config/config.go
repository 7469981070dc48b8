// Package config loads tiedsiren configuration from defaults, TOML files,
// environment variables and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DataDirName is the directory holding the database, spool and project config.
const DataDirName = ".tiedsiren"

// Config is the full configuration tree.
type Config struct {
	General       GeneralConfig       `toml:"general" mapstructure:"general"`
	Daemon        DaemonConfig        `toml:"daemon" mapstructure:"daemon"`
	Notifications NotificationsConfig `toml:"notifications" mapstructure:"notifications"`
	History       HistoryConfig       `toml:"history" mapstructure:"history"`
}

// GeneralConfig holds session defaults.
type GeneralConfig struct {
	DefaultSessionMinutes int  `toml:"default_session_minutes" mapstructure:"default_session_minutes"`
	DefaultStrictMode     bool `toml:"default_strict_mode" mapstructure:"default_strict_mode"`
}

// DaemonConfig controls the background daemon.
type DaemonConfig struct {
	// SpoolDir is where the native lookout exchanges files. Empty means
	// <data dir>/spool.
	SpoolDir           string `toml:"spool_dir" mapstructure:"spool_dir"`
	ExpiryCheckSeconds int    `toml:"expiry_check_seconds" mapstructure:"expiry_check_seconds"`
	UseFileWatcher     bool   `toml:"use_file_watcher" mapstructure:"use_file_watcher"`
	LogLevel           string `toml:"log_level" mapstructure:"log_level"`
}

// NotificationsConfig controls desktop notifications.
type NotificationsConfig struct {
	DesktopEnabled  bool `toml:"desktop_enabled" mapstructure:"desktop_enabled"`
	CooldownSeconds int  `toml:"cooldown_seconds" mapstructure:"cooldown_seconds"`
}

// HistoryConfig controls launch history retention.
type HistoryConfig struct {
	// RetentionDays of 0 keeps launches forever.
	RetentionDays int `toml:"retention_days" mapstructure:"retention_days"`
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// HomeDir holds the project data dir. Empty means the current directory.
	HomeDir string
	// ConfigPath replaces the project config file when set.
	ConfigPath string
	// FlagOverrides are applied last, keyed by dotted config key.
	FlagOverrides map[string]any
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultSessionMinutes: 60,
			DefaultStrictMode:     false,
		},
		Daemon: DaemonConfig{
			SpoolDir:           "",
			ExpiryCheckSeconds: 30,
			UseFileWatcher:     true,
			LogLevel:           "info",
		},
		Notifications: NotificationsConfig{
			DesktopEnabled:  true,
			CooldownSeconds: 10,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
	}
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
)

// keyKinds lists every settable leaf key.
var keyKinds = map[string]valueKind{
	"general.default_session_minutes": kindInt,
	"general.default_strict_mode":     kindBool,
	"daemon.spool_dir":                kindString,
	"daemon.expiry_check_seconds":     kindInt,
	"daemon.use_file_watcher":         kindBool,
	"daemon.log_level":                kindString,
	"notifications.desktop_enabled":   kindBool,
	"notifications.cooldown_seconds":  kindInt,
	"history.retention_days":          kindInt,
}

// envKeys maps config keys to environment variables.
var envKeys = map[string]string{
	"general.default_session_minutes": "TIEDSIREN_SESSION_MINUTES",
	"general.default_strict_mode":     "TIEDSIREN_STRICT_MODE",
	"daemon.spool_dir":                "TIEDSIREN_SPOOL_DIR",
	"daemon.expiry_check_seconds":     "TIEDSIREN_EXPIRY_CHECK_SECONDS",
	"daemon.use_file_watcher":         "TIEDSIREN_USE_FILE_WATCHER",
	"daemon.log_level":                "TIEDSIREN_LOG_LEVEL",
	"notifications.desktop_enabled":   "TIEDSIREN_DESKTOP_NOTIFICATIONS",
	"notifications.cooldown_seconds":  "TIEDSIREN_NOTIFY_COOLDOWN_SECONDS",
	"history.retention_days":          "TIEDSIREN_RETENTION_DAYS",
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load resolves configuration with precedence
// defaults < user file < project file < environment < flag overrides.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	userPath, projectPath := ConfigPaths(opts.HomeDir, opts.ConfigPath)
	if err := mergeConfigFile(v, userPath); err != nil {
		return Config{}, err
	}
	if projectPath != userPath {
		if err := mergeConfigFile(v, projectPath); err != nil {
			return Config{}, err
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	for key, val := range opts.FlagOverrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("general.default_session_minutes", d.General.DefaultSessionMinutes)
	v.SetDefault("general.default_strict_mode", d.General.DefaultStrictMode)
	v.SetDefault("daemon.spool_dir", d.Daemon.SpoolDir)
	v.SetDefault("daemon.expiry_check_seconds", d.Daemon.ExpiryCheckSeconds)
	v.SetDefault("daemon.use_file_watcher", d.Daemon.UseFileWatcher)
	v.SetDefault("daemon.log_level", d.Daemon.LogLevel)
	v.SetDefault("notifications.desktop_enabled", d.Notifications.DesktopEnabled)
	v.SetDefault("notifications.cooldown_seconds", d.Notifications.CooldownSeconds)
	v.SetDefault("history.retention_days", d.History.RetentionDays)
}

// mergeConfigFile merges a TOML file into v. A missing file is not an error.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.SetConfigType("toml")
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func Validate(cfg Config) error {
	var problems []string
	if cfg.General.DefaultSessionMinutes <= 0 {
		problems = append(problems, "general.default_session_minutes must be > 0")
	}
	if cfg.Daemon.ExpiryCheckSeconds <= 0 {
		problems = append(problems, "daemon.expiry_check_seconds must be > 0")
	}
	switch strings.ToLower(cfg.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("daemon.log_level %q must be debug, info, warn or error", cfg.Daemon.LogLevel))
	}
	if cfg.Notifications.CooldownSeconds < 0 {
		problems = append(problems, "notifications.cooldown_seconds must be >= 0")
	}
	if cfg.History.RetentionDays < 0 {
		problems = append(problems, "history.retention_days must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DataDir returns the data directory under home.
func DataDir(home string) string {
	return filepath.Join(home, DataDirName)
}

// SpoolDir resolves the spool directory for a data dir.
func (c Config) SpoolDir(dataDir string) string {
	if c.Daemon.SpoolDir != "" {
		return c.Daemon.SpoolDir
	}
	return filepath.Join(dataDir, "spool")
}

// ConfigPaths returns the user and project config file paths. A non-empty
// override replaces the project path.
func ConfigPaths(home, override string) (string, string) {
	var userPath string
	if userHome, err := os.UserHomeDir(); err == nil {
		userPath = filepath.Join(userHome, DataDirName, "config.toml")
	}
	return userPath, projectConfigPath(home, override)
}

func projectConfigPath(home, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(home, DataDirName, "config.toml")
}

// GetValue looks up a dotted key. Section names return the whole section.
func GetValue(cfg Config, key string) (any, bool) {
	switch key {
	case "general":
		return cfg.General, true
	case "daemon":
		return cfg.Daemon, true
	case "notifications":
		return cfg.Notifications, true
	case "history":
		return cfg.History, true

	case "general.default_session_minutes":
		return cfg.General.DefaultSessionMinutes, true
	case "general.default_strict_mode":
		return cfg.General.DefaultStrictMode, true

	case "daemon.spool_dir":
		return cfg.Daemon.SpoolDir, true
	case "daemon.expiry_check_seconds":
		return cfg.Daemon.ExpiryCheckSeconds, true
	case "daemon.use_file_watcher":
		return cfg.Daemon.UseFileWatcher, true
	case "daemon.log_level":
		return cfg.Daemon.LogLevel, true

	case "notifications.desktop_enabled":
		return cfg.Notifications.DesktopEnabled, true
	case "notifications.cooldown_seconds":
		return cfg.Notifications.CooldownSeconds, true

	case "history.retention_days":
		return cfg.History.RetentionDays, true
	}
	return nil, false
}

// ParseValue converts a raw string into the type expected by key.
func ParseValue(key, raw string) (any, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return nil, fmt.Errorf("unsupported config key %q", key)
	}
	return parseValueByKind(raw, kind)
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindString:
		return raw, nil
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", raw)
		}
		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %d", kind)
	}
}

// WriteValue sets key in the TOML file at path, creating the file and its
// parent directory as needed. Other keys are preserved.
func WriteValue(path, key string, value any) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return fmt.Errorf("key %q must be section.name", key)
	}

	tree := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &tree); err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	node := tree
	for _, part := range parts[:len(parts)-1] {
		next, exists := node[part]
		if !exists {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config key %q is not a table", part)
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tree); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
