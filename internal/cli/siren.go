package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/siren"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

func init() {
	sirenCmd.AddCommand(sirenWatchedCmd)
	sirenCmd.AddCommand(sirenLockedCmd)
	sirenCmd.AddCommand(sirenCategoriesCmd)

	rootCmd.AddCommand(sirenCmd)
}

var sirenCmd = &cobra.Command{
	Use:   "siren",
	Short: "Inspect the sirens the active sessions watch and lock",
}

var sirenWatchedCmd = &cobra.Command{
	Use:   "watched",
	Short: "Show the merged sirens of every active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		watched, err := core.WatchedSirens(dbConn, nowFn())
		if err != nil {
			return err
		}
		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(watched)
		}
		if watched.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing is being watched.")
			return nil
		}
		writeSirens(cmd.OutOrStdout(), watched)
		return nil
	},
}

var sirenLockedCmd = &cobra.Command{
	Use:   "locked [<category> <identifier>]",
	Short: "Show locked sirens, or whether one siren is locked",
	Args:  cobra.RangeArgs(0, 2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return categoryNames(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("need both <category> and <identifier>")
		}
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		locked, err := core.LockedSirensAt(dbConn, nowFn())
		if err != nil {
			return err
		}
		out := newWriter(cmd)

		if len(args) == 0 {
			view := map[siren.Category][]string{}
			if locked != nil {
				view = locked.MarshalView()
			}
			if out.Structured() {
				return out.Write(view)
			}
			if locked.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing is locked.")
				return nil
			}
			for _, c := range siren.Categories() {
				for _, id := range view[c] {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %-9s %s\n", c, utils.Printable(id))
				}
			}
			return nil
		}

		c, err := siren.ParseCategory(args[0])
		if err != nil {
			return err
		}
		isLocked := siren.IsLocked(locked, c, args[1])
		if out.Structured() {
			return out.Write(map[string]any{
				"category":   c,
				"identifier": args[1],
				"locked":     isLocked,
			})
		}
		if isLocked {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is locked\n", c, utils.Printable(args[1]))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not locked\n", c, utils.Printable(args[1]))
		}
		return nil
	},
}

var sirenCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List siren categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(categoryNames())
		}
		for _, c := range siren.Categories() {
			lockable := ""
			if !siren.IsLockable(c) {
				lockable = "  (never locked)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", c, lockable)
		}
		return nil
	},
}

func categoryNames() []string {
	cats := siren.Categories()
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out
}
