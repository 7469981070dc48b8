package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/siren"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

var (
	flagBlocklistApps     []string
	flagBlocklistWindows  []string
	flagBlocklistMacOS    []string
	flagBlocklistIOS      []string
	flagBlocklistLinux    []string
	flagBlocklistWebsites []string
	flagBlocklistKeywords []string
	flagSirenLabel        string
)

func init() {
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistApps, "app", nil, "android package, optionally package=Label (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistWindows, "windows", nil, "windows executable (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistMacOS, "macos", nil, "macOS bundle id (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistIOS, "ios", nil, "iOS bundle id (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistLinux, "linux", nil, "linux executable (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistWebsites, "website", nil, "website host (repeatable)")
	blocklistCreateCmd.Flags().StringArrayVar(&flagBlocklistKeywords, "keyword", nil, "keyword (repeatable)")

	blocklistAddCmd.Flags().StringVar(&flagSirenLabel, "label", "", "display name (android apps only)")

	blocklistCmd.AddCommand(blocklistCreateCmd)
	blocklistCmd.AddCommand(blocklistListCmd)
	blocklistCmd.AddCommand(blocklistShowCmd)
	blocklistCmd.AddCommand(blocklistRenameCmd)
	blocklistCmd.AddCommand(blocklistDeleteCmd)
	blocklistCmd.AddCommand(blocklistAddCmd)
	blocklistCmd.AddCommand(blocklistRemoveCmd)

	rootCmd.AddCommand(blocklistCmd)
}

var blocklistCmd = &cobra.Command{
	Use:     "blocklist",
	Aliases: []string{"bl"},
	Short:   "Manage blocklists of sirens",
}

var blocklistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a blocklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sirens := siren.Empty()
		for _, raw := range flagBlocklistApps {
			pkg, label, _ := strings.Cut(raw, "=")
			pkg = strings.TrimSpace(pkg)
			if pkg == "" {
				return fmt.Errorf("--app needs a package name")
			}
			sirens.Android = append(sirens.Android, siren.AndroidApp{PackageName: pkg, AppName: strings.TrimSpace(label)})
		}
		for c, ids := range map[siren.Category][]string{
			siren.CategoryWindows:  flagBlocklistWindows,
			siren.CategoryMacOS:    flagBlocklistMacOS,
			siren.CategoryIOS:      flagBlocklistIOS,
			siren.CategoryLinux:    flagBlocklistLinux,
			siren.CategoryWebsites: flagBlocklistWebsites,
			siren.CategoryKeywords: flagBlocklistKeywords,
		} {
			for _, id := range ids {
				if id = strings.TrimSpace(id); id != "" {
					sirens.Add(c, id)
				}
			}
		}

		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		b := &db.Blocklist{Name: args[0], Sirens: sirens}
		if err := dbConn.CreateBlocklist(b); err != nil {
			return err
		}
		return writeBlocklist(cmd, b)
	},
}

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocklists",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		lists, err := dbConn.ListBlocklists()
		if err != nil {
			return err
		}

		type blocklistView struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Sirens    int    `json:"sirens"`
			UpdatedAt string `json:"updated_at"`
		}
		resp := make([]blocklistView, 0, len(lists))
		for _, b := range lists {
			resp = append(resp, blocklistView{
				ID:        b.ID,
				Name:      b.Name,
				Sirens:    b.Sirens.Len(),
				UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
			})
		}

		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(resp)
		}
		w := cmd.OutOrStdout()
		if len(resp) == 0 {
			fmt.Fprintln(w, "No blocklists. Create one with: tiedsiren blocklist create <name>")
			return nil
		}
		for _, v := range resp {
			fmt.Fprintf(w, "%-20s %3d sirens  %s\n", utils.Printable(v.Name), v.Sirens, v.ID)
		}
		return nil
	},
}

var blocklistShowCmd = &cobra.Command{
	Use:               "show <blocklist>",
	Short:             "Show a blocklist and its sirens",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeBlocklists,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		b, err := core.ResolveBlocklist(dbConn, args[0])
		if err != nil {
			return err
		}
		return writeBlocklist(cmd, b)
	},
}

var blocklistRenameCmd = &cobra.Command{
	Use:               "rename <blocklist> <new-name>",
	Short:             "Rename a blocklist",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeBlocklists,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		b, err := core.ResolveBlocklist(dbConn, args[0])
		if err != nil {
			return err
		}
		if err := dbConn.RenameBlocklist(b.ID, args[1]); err != nil {
			return err
		}
		b, err = dbConn.GetBlocklist(b.ID)
		if err != nil {
			return err
		}
		return writeBlocklist(cmd, b)
	},
}

var blocklistDeleteCmd = &cobra.Command{
	Use:               "delete <blocklist>",
	Short:             "Delete a blocklist (refused while a strict session uses it)",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeBlocklists,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		if err := core.DeleteBlocklist(dbConn, args[0], nowFn()); err != nil {
			return err
		}
		newWriter(cmd).Success(fmt.Sprintf("deleted blocklist %s", args[0]))
		return nil
	},
}

var blocklistAddCmd = &cobra.Command{
	Use:               "add <blocklist> <category> <identifier>",
	Short:             "Add a siren to a blocklist",
	Args:              cobra.ExactArgs(3),
	ValidArgsFunction: completeBlocklistThenCategory,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := siren.ParseCategory(args[1])
		if err != nil {
			return err
		}
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		b, err := core.AddSiren(dbConn, args[0], c, args[2], flagSirenLabel)
		if err != nil {
			return err
		}
		return writeBlocklist(cmd, b)
	},
}

var blocklistRemoveCmd = &cobra.Command{
	Use:               "remove <blocklist> <category> <identifier>",
	Short:             "Remove a siren from a blocklist (refused while locked)",
	Args:              cobra.ExactArgs(3),
	ValidArgsFunction: completeBlocklistThenCategory,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := siren.ParseCategory(args[1])
		if err != nil {
			return err
		}
		dbConn, err := openDB()
		if err != nil {
			return err
		}
		defer dbConn.Close()

		b, err := core.RemoveSiren(dbConn, args[0], c, args[2], nowFn())
		if err != nil {
			return err
		}
		return writeBlocklist(cmd, b)
	},
}

func writeBlocklist(cmd *cobra.Command, b *db.Blocklist) error {
	out := newWriter(cmd)
	if out.Structured() {
		return out.Write(b)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Blocklist:  %s\n", utils.Printable(b.Name))
	fmt.Fprintf(w, "ID:         %s\n", b.ID)
	fmt.Fprintf(w, "Sirens:     %d\n", b.Sirens.Len())
	writeSirens(w, b.Sirens)
	return nil
}

func writeSirens(w io.Writer, s siren.Sirens) {
	for _, app := range s.Android {
		if app.AppName != "" {
			fmt.Fprintf(w, "  - %-9s %s (%s)\n", siren.CategoryAndroid, utils.Printable(app.PackageName), utils.Printable(app.AppName))
			continue
		}
		fmt.Fprintf(w, "  - %-9s %s\n", siren.CategoryAndroid, utils.Printable(app.PackageName))
	}
	for _, c := range siren.Categories()[1:] {
		for _, id := range s.IDs(c) {
			fmt.Fprintf(w, "  - %-9s %s\n", c, utils.Printable(id))
		}
	}
}
