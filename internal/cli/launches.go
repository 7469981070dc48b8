package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/db"
)

var (
	flagLaunchesLimit int
	flagPruneDays     int
)

func init() {
	launchesCmd.Flags().IntVarP(&flagLaunchesLimit, "limit", "n", 50, "maximum launches to show (0 = all)")
	launchesPruneCmd.Flags().IntVar(&flagPruneDays, "older-than", 0, "prune launches older than N days (default: history.retention_days)")

	launchesCmd.AddCommand(launchesPruneCmd)
	rootCmd.AddCommand(launchesCmd)
}

var launchesCmd = &cobra.Command{
	Use:   "launches",
	Short: "Show recently blocked launches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		events, err := dbConn.ListLaunches(flagLaunchesLimit)
		if err != nil {
			return err
		}
		out := newWriter(cmd)
		if out.Structured() {
			if events == nil {
				events = []*db.LaunchEvent{}
			}
			return out.Write(events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No blocked launches.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s %s\n", e.DetectedAt.Local().Format("2006-01-02 15:04:05"), e.Category, e.Identifier)
		}
		return nil
	},
}

var launchesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old launch history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		days := flagPruneDays
		if days <= 0 {
			days = cfg.History.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention is disabled; pass --older-than")
		}

		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		cutoff := nowFn().AddDate(0, 0, -days)
		n, err := dbConn.PruneLaunches(cutoff)
		if err != nil {
			return err
		}
		return newWriter(cmd).Write(map[string]any{
			"removed": n,
			"before":  cutoff.UTC().Format(time.RFC3339),
		})
	},
}
