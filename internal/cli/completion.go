package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/db"
)

var completionCmd = &cobra.Command{
	Use:       "completion [bash|zsh|fish|powershell]",
	Short:     "Generate shell completion scripts",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		default:
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// openReadOnly opens the state database without creating it; completions must
// never leave files behind.
func openReadOnly() (*db.DB, error) {
	home, err := homeDir()
	if err != nil {
		return nil, err
	}
	return db.OpenWithOptions(dbPath(home), db.OpenOptions{ReadOnly: true})
}

// completeBlocklists completes the first positional argument only.
func completeBlocklists(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return blocklistNames(toComplete)
}

func completeBlocklistFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return blocklistNames(toComplete)
}

func blocklistNames(toComplete string) ([]string, cobra.ShellCompDirective) {
	database, err := openReadOnly()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer database.Close()

	lists, err := database.ListBlocklists()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(lists))
	for _, b := range lists {
		if toComplete != "" && !strings.HasPrefix(b.Name, toComplete) {
			continue
		}
		out = append(out, b.Name+"\t"+b.ID)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeBlocklistThenCategory(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeBlocklists(cmd, args, toComplete)
	case 1:
		return categoryNames(), cobra.ShellCompDirectiveNoFileComp
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func completeSessionIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	database, err := openReadOnly()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer database.Close()

	sessions, err := database.ListActiveBlockSessions(nowFn())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s == nil || s.ID == "" {
			continue
		}
		if toComplete != "" && !strings.HasPrefix(s.ID, toComplete) {
			continue
		}
		desc := s.Name
		if s.StrictMode {
			desc = strings.TrimSpace(desc + " (strict)")
		}
		out = append(out, s.ID+"\t"+desc)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
