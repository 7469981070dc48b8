package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/config"
)

var (
	flagConfigGlobal bool
)

func init() {
	configCmd.PersistentFlags().BoolVar(&flagConfigGlobal, "global", false, "operate on user config (~/.tiedsiren/config.toml)")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configKeysCmd)

	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or modify Tied Siren configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		out := newWriter(cmd)
		if !out.Structured() {
			for _, key := range config.Keys() {
				val, _ := config.GetValue(cfg, key)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, val)
			}
			return nil
		}
		return out.Write(cfg)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		val, ok := config.GetValue(cfg, args[0])
		if !ok {
			return fmt.Errorf("unknown key %q", args[0])
		}
		out := newWriter(cmd)
		if !out.Structured() {
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		}
		return out.Write(map[string]any{
			"key":   args[0],
			"value": val,
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the data dir (or --global) config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := configTarget()
		if err != nil {
			return err
		}

		value, err := config.ParseValue(args[0], args[1])
		if err != nil {
			return err
		}
		prev, readErr := os.ReadFile(target)
		if err := config.WriteValue(target, args[0], value); err != nil {
			return err
		}
		if _, _, err := loadConfig(); err != nil {
			if readErr == nil {
				_ = os.WriteFile(target, prev, 0600)
			} else {
				_ = os.Remove(target)
			}
			return fmt.Errorf("rejected %s=%v: %w", args[0], value, err)
		}

		return newWriter(cmd).Write(map[string]any{
			"path":  target,
			"key":   args[0],
			"value": value,
		})
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR (default: vi)",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := configTarget()
		if err != nil {
			return err
		}

		// Ensure the file exists with at least defaults for convenience.
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			if err := config.WriteValue(target, "general.default_session_minutes", config.DefaultConfig().General.DefaultSessionMinutes); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", target, err)
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		editCmd := exec.Command(editor, target)
		editCmd.Stdin = os.Stdin
		editCmd.Stdout = cmd.OutOrStdout()
		editCmd.Stderr = cmd.ErrOrStderr()
		return editCmd.Run()
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every settable configuration key",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newWriter(cmd)
		if !out.Structured() {
			for _, key := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}
		return out.Write(config.Keys())
	},
}

func configTarget() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	userPath, dataPath := config.ConfigPaths(home, flagConfig)
	if flagConfigGlobal {
		if userPath == "" {
			return "", fmt.Errorf("cannot resolve user config path")
		}
		return userPath, nil
	}
	return dataPath, nil
}
