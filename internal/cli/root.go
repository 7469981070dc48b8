// Package cli implements the Cobra command-line interface for Tied Siren.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/output"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values
var (
	flagConfig  string
	flagOutput  string
	flagJSON    bool
	flagVerbose bool
	flagHome    string
)

// nowFn is the clock used by every command.
var nowFn = time.Now

var rootCmd = &cobra.Command{
	Use:   "tiedsiren",
	Short: "Tied Siren - block distracting apps and websites during focus sessions",
	Long: `Tied Siren blocks the apps, websites and keywords ("sirens") on your
blocklists while a focus session is running.

Sessions come in two flavours:
  regular  - can be ended early, blocklists stay editable
  strict   - cannot be ended early, sirens on its blocklists cannot be removed

The daemon keeps the platform lookout watching the sirens of every active
session and blocks each detected launch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand given, show quick reference card
		return showQuickReference(cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := homeDir()
		if err != nil {
			return err
		}
		_, cfgPath := config.ConfigPaths(home, flagConfig)
		payload := map[string]any{
			"version":     version,
			"commit":      commit,
			"build_date":  date,
			"go_version":  runtime.Version(),
			"config_path": cfgPath,
			"db_path":     dbPath(home),
		}

		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(payload)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "tiedsiren %s\n", version)
		fmt.Fprintf(w, "  commit:  %s\n", commit)
		fmt.Fprintf(w, "  built:   %s\n", date)
		fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
		fmt.Fprintf(w, "  config:  %s\n", cfgPath)
		fmt.Fprintf(w, "  db:      %s\n", dbPath(home))
		return nil
	},
}

// Execute runs the root command and reports a failure in the selected
// output format.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		newWriter(rootCmd).Error(err)
	}
	return err
}

// GetOutput returns the configured output format.
// Precedence: CLI flags > TIEDSIREN_OUTPUT_FORMAT env > default
func GetOutput() string {
	if flagJSON {
		return "json"
	}
	if flagOutput != "" && flagOutput != "text" {
		return flagOutput
	}
	if envFormat := os.Getenv("TIEDSIREN_OUTPUT_FORMAT"); envFormat != "" {
		if f, err := output.ParseFormat(envFormat); err == nil {
			return string(f)
		}
	}
	return "text"
}

// newWriter returns an output writer bound to the command's streams.
func newWriter(cmd *cobra.Command) *output.Writer {
	return output.New(output.Format(GetOutput()),
		output.WithOutput(cmd.OutOrStdout()),
		output.WithErrorOutput(cmd.ErrOrStderr()))
}

// homeDir resolves the home directory that holds the data dir.
// Precedence: --home > TIEDSIREN_HOME env > user home
func homeDir() (string, error) {
	if flagHome != "" {
		return flagHome, nil
	}
	if env := os.Getenv("TIEDSIREN_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return home, nil
}

func dbPath(home string) string {
	return filepath.Join(config.DataDir(home), "state.db")
}

// loadConfig loads the layered config for the resolved home.
func loadConfig() (config.Config, string, error) {
	home, err := homeDir()
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(config.LoadOptions{
		HomeDir:    home,
		ConfigPath: flagConfig,
	})
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, home, nil
}

// openDB opens (creating and migrating if needed) the state database.
func openDB() (*db.DB, error) {
	home, err := homeDir()
	if err != nil {
		return nil, err
	}
	return db.OpenAndMigrate(dbPath(home))
}

// newLogger builds a stderr logger at the configured level; --verbose forces debug.
func newLogger(cmd *cobra.Command, cfg config.Config) *log.Logger {
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	level, err := log.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if flagVerbose {
		level = log.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, yaml (env: TIEDSIREN_OUTPUT_FORMAT)")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "shorthand for --output=json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagHome, "home", "H", "", "home directory holding .tiedsiren (env: TIEDSIREN_HOME)")

	rootCmd.AddCommand(versionCmd)
}
