package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/lookout"
	"github.com/tiedsiren/tiedsiren/internal/output"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

var flagDetectAt string

func init() {
	lookoutDetectCmd.Flags().StringVar(&flagDetectAt, "at", "", "detection time (RFC3339); default now")

	lookoutCmd.AddCommand(lookoutDetectCmd)
	lookoutCmd.AddCommand(lookoutWatchlistCmd)

	rootCmd.AddCommand(lookoutCmd)
}

var lookoutCmd = &cobra.Command{
	Use:   "lookout",
	Short: "Talk to the lookout spool the native monitor shares with the daemon",
}

type detectionRecord struct {
	Identifier string `json:"identifier"`
	DetectedAt string `json:"detected_at"`
	Path       string `json:"path"`
}

var lookoutDetectCmd = &cobra.Command{
	Use:   "detect <identifier>...",
	Short: "Report detected sirens to the running daemon, as the native monitor would",
	Long: `Write one detection file per identifier into the lookout spool.

JSON output is one document per line, in argument order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spoolDir, err := spoolDir()
		if err != nil {
			return err
		}
		at := nowFn()
		if flagDetectAt != "" {
			if at, err = time.Parse(time.RFC3339, flagDetectAt); err != nil {
				return fmt.Errorf("invalid --at %q: %w", flagDetectAt, err)
			}
		}

		out := newWriter(cmd)
		var records []detectionRecord
		for i, id := range args {
			// Spool files are consumed in name order, which starts with the
			// timestamp; a nanosecond step keeps argument order.
			path, err := lookout.WriteDetection(spoolDir, id, at.Add(time.Duration(i)))
			if err != nil {
				return err
			}
			rec := detectionRecord{Identifier: id, DetectedAt: at.UTC().Format(time.RFC3339), Path: path}
			switch out.Format() {
			case output.FormatJSON:
				if err := out.WriteNDJSON(rec); err != nil {
					return err
				}
			case output.FormatText:
				fmt.Fprintf(cmd.OutOrStdout(), "detected %s -> %s\n", utils.Printable(id), path)
			default:
				records = append(records, rec)
			}
		}
		if records != nil {
			return out.Write(records)
		}
		return nil
	},
}

var lookoutWatchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Show the watchlist the daemon last published",
	RunE: func(cmd *cobra.Command, args []string) error {
		spoolDir, err := spoolDir()
		if err != nil {
			return err
		}
		wl, err := lookout.ReadWatchlist(spoolDir)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no watchlist in %s (is the daemon running?)", spoolDir)
		}
		if err != nil {
			return err
		}
		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(wl)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated:    %s\n", wl.UpdatedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "Sirens:     %d\n", wl.Sirens.Len())
		writeSirens(cmd.OutOrStdout(), wl.Sirens)
		return nil
	},
}

func spoolDir() (string, error) {
	cfg, home, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.SpoolDir(config.DataDir(home)), nil
}
