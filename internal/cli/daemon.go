package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/daemon"
)

var flagServiceUser bool

func init() {
	daemonCmd.PersistentFlags().BoolVar(&flagServiceUser, "user", false, "manage a per-user service instead of a system one")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	for _, action := range service.ControlAction {
		daemonCmd.AddCommand(newServiceControlCmd(action))
	}

	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run or manage the background daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon (foreground, or under the service manager)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDaemon(cmd)
		if err != nil {
			return err
		}

		if !service.Interactive() {
			svc, err := daemon.NewService(d, serviceConfig())
			if err != nil {
				return err
			}
			return svc.Run()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return d.Run(ctx)
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := homeDir()
		if err != nil {
			return err
		}
		info := daemon.GetStatusInfo(daemon.PIDFile(config.DataDir(home)))
		out := newWriter(cmd)
		if out.Structured() {
			return out.Write(info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.Message)
		return nil
	},
}

func newServiceControlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("%s the daemon OS service", action),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDaemon(cmd)
			if err != nil {
				return err
			}
			svc, err := daemon.NewService(d, serviceConfig())
			if err != nil {
				return err
			}
			if err := daemon.ControlService(svc, action); err != nil {
				return err
			}
			newWriter(cmd).Success(fmt.Sprintf("service %s: %s", daemon.ServiceName, action))
			return nil
		},
	}
}

func newDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, home, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.New(daemon.Options{
		DataDir: config.DataDir(home),
		Config:  cfg,
		Logger:  newLogger(cmd, cfg),
	})
}

// serviceConfig registers "daemon run" with the resolved home and config so
// the service sees the same data dir as this invocation.
func serviceConfig() *service.Config {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	home, _ := homeDir()
	args := []string{"daemon", "run", "--home", home}
	if flagConfig != "" {
		args = append(args, "--config", flagConfig)
	}
	return daemon.ServiceConfig(exe, args, flagServiceUser)
}
