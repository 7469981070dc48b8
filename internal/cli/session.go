package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

var (
	flagSessionBlocklists []string
	flagSessionDuration   time.Duration
	flagSessionStrict     bool
	flagSessionName       string
	flagSessionAt         string
	flagSessionActive     bool
	flagExpireDryRun      bool
)

func init() {
	sessionStartCmd.Flags().StringSliceVarP(&flagSessionBlocklists, "blocklist", "b", nil, "blocklist name or ID (repeatable, required)")
	sessionStartCmd.Flags().DurationVarP(&flagSessionDuration, "duration", "d", 0, "session length, e.g. 90m (default: general.default_session_minutes)")
	sessionStartCmd.Flags().BoolVar(&flagSessionStrict, "strict", false, "strict mode: cannot be ended early, sirens cannot be removed (default: general.default_strict_mode)")
	sessionStartCmd.Flags().StringVarP(&flagSessionName, "name", "n", "", "session name")
	sessionStartCmd.Flags().StringVar(&flagSessionAt, "at", "", "start time (RFC3339 or HH:MM today); default now")
	_ = sessionStartCmd.RegisterFlagCompletionFunc("blocklist", completeBlocklistFlag)

	sessionListCmd.Flags().BoolVar(&flagSessionActive, "active", false, "only sessions active now")
	sessionExpireCmd.Flags().BoolVar(&flagExpireDryRun, "dry-run", false, "report without ending")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionExpireCmd)

	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, end and list block sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a block session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(flagSessionBlocklists) == 0 {
			return fmt.Errorf("--blocklist is required")
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		now := nowFn()

		duration := flagSessionDuration
		if duration == 0 {
			duration = time.Duration(cfg.General.DefaultSessionMinutes) * time.Minute
		}
		strict := flagSessionStrict
		if !cmd.Flags().Changed("strict") {
			strict = cfg.General.DefaultStrictMode
		}
		startsAt, err := parseStartTime(flagSessionAt, now)
		if err != nil {
			return err
		}

		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		s, err := core.StartSession(dbConn, core.StartOptions{
			Name:       flagSessionName,
			Blocklists: flagSessionBlocklists,
			StartsAt:   startsAt,
			Duration:   duration,
			StrictMode: strict,
			Now:        now,
		})
		if err != nil {
			return err
		}
		return writeSession(cmd, s)
	},
}

var sessionEndCmd = &cobra.Command{
	Use:               "end <session-id>",
	Short:             "End a regular session early",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSessionIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		s, err := core.EndSession(dbConn, args[0], nowFn())
		if err != nil {
			return err
		}
		return writeSession(cmd, s)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List block sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		var sessions []*db.BlockSession
		if flagSessionActive {
			sessions, err = dbConn.ListActiveBlockSessions(nowFn())
		} else {
			sessions, err = dbConn.ListBlockSessions()
		}
		if err != nil {
			return err
		}

		out := newWriter(cmd)
		if out.Structured() {
			if sessions == nil {
				sessions = []*db.BlockSession{}
			}
			return out.Write(sessions)
		}
		w := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No sessions.")
			return nil
		}
		now := nowFn()
		for _, s := range sessions {
			writeSessionLine(w, s, now)
		}
		return nil
	},
}

var sessionExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "End sessions that ran past their end time",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		res, err := core.ExpireSessions(dbConn, core.ExpireOptions{Now: nowFn(), DryRun: flagExpireDryRun})
		if err != nil {
			return err
		}
		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(map[string]any{
				"dry_run":     flagExpireDryRun,
				"expired":     len(res.Sessions),
				"ended_ids":   nonNil(res.EndedIDs),
				"skipped_ids": nonNil(res.SkippedIDs),
			})
		}
		verb := "Ended"
		if flagExpireDryRun {
			verb = "Would end"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d expired session(s)\n", verb, len(res.Sessions))
		for _, s := range res.Sessions {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s (ended at %s)\n", s.ID, s.EndsAt.Format(time.RFC3339))
		}
		return nil
	},
}

// parseStartTime accepts RFC3339 or HH:MM (today, local time). Empty means now.
func parseStartTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", raw, now.Location()); err == nil {
		y, m, d := now.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("invalid --at %q (want RFC3339 or HH:MM)", raw)
}

func writeSession(cmd *cobra.Command, s *db.BlockSession) error {
	out := newWriter(cmd)
	if out.Structured() {
		return out.Write(s)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session:    %s\n", s.ID)
	if s.Name != "" {
		fmt.Fprintf(w, "Name:       %s\n", utils.Printable(s.Name))
	}
	fmt.Fprintf(w, "Starts:     %s\n", s.StartsAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Ends:       %s\n", s.EndsAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Strict:     %v\n", s.StrictMode)
	if s.EndedAt != nil {
		fmt.Fprintf(w, "Ended:      %s\n", s.EndedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Blocklists: %s\n", strings.Join(s.BlocklistIDs, ", "))
	return nil
}

func writeSessionLine(w io.Writer, s *db.BlockSession, now time.Time) {
	state := "scheduled"
	switch {
	case s.EndedAt != nil:
		state = "ended"
	case s.IsActiveAt(now):
		state = "active"
	case s.IsExpiredAt(now):
		state = "expired"
	}
	mode := "regular"
	if s.StrictMode {
		mode = "strict"
	}
	fmt.Fprintf(w, "%s  %-9s %-7s %s -> %s  %s\n", s.ID, state, mode,
		s.StartsAt.Local().Format("2006-01-02 15:04"),
		s.EndsAt.Local().Format("15:04"),
		utils.Printable(s.Name))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
