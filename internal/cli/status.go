package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/daemon"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current phase, active sessions and daemon state",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := homeDir()
		if err != nil {
			return err
		}
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		st, err := core.StatusAt(dbConn, nowFn())
		if err != nil {
			return err
		}
		daemonInfo := daemon.GetStatusInfo(daemon.PIDFile(config.DataDir(home)))

		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(map[string]any{
				"phase":          st.Phase,
				"now":            st.Now.UTC().Format(time.RFC3339),
				"sessions":       st.Sessions,
				"watched_sirens": st.Watched,
				"locked_sirens":  st.Locked,
				"daemon":         daemonInfo,
			})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Phase:      %s\n", phaseBadge(st.Phase, supportsUnicode()))
		fmt.Fprintf(w, "Watched:    %d sirens\n", st.Watched)
		fmt.Fprintf(w, "Locked:     %d sirens\n", st.Locked)
		fmt.Fprintf(w, "Daemon:     %s\n", daemonInfo.Message)
		if len(st.Sessions) == 0 {
			fmt.Fprintln(w, "Sessions:   none active")
			return nil
		}
		fmt.Fprintln(w, "Sessions:")
		for _, s := range st.Sessions {
			mode := "regular"
			if s.StrictMode {
				mode = "strict"
			}
			left := s.EndsAt.Sub(st.Now).Round(time.Minute)
			fmt.Fprintf(w, "  - %s %-7s %s left  %s\n", s.ID, mode, left, utils.Printable(s.Name))
		}
		return nil
	},
}
