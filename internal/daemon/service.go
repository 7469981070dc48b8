package daemon

import (
	"context"
	"fmt"
	"slices"

	"github.com/kardianos/service"
)

// ServiceName is the name the daemon registers under with the OS service manager.
const ServiceName = "tiedsiren"

// ServiceConfig describes the OS service entry. The installed service runs
// executable with args, typically "daemon run --home <home>".
func ServiceConfig(executable string, args []string, userService bool) *service.Config {
	cfg := &service.Config{
		Name:        ServiceName,
		DisplayName: "Tied Siren",
		Description: "Blocks distracting apps and websites during focus sessions",
		Executable:  executable,
		Arguments:   append([]string(nil), args...),
		Option:      service.KeyValue{},
	}
	if userService {
		cfg.Option["UserService"] = true
	}
	return cfg
}

// program adapts a Daemon to service.Interface.
type program struct {
	d      *Daemon
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- p.d.Run(ctx) }()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// NewService wraps d so the OS service manager can start and stop it.
func NewService(d *Daemon, cfg *service.Config) (service.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service config is required")
	}
	return service.New(&program{d: d}, cfg)
}

// ControlService runs one of install, uninstall, start, stop or restart.
func ControlService(s service.Service, action string) error {
	if !slices.Contains(service.ControlAction[:], action) {
		return fmt.Errorf("unknown service action %q (valid: %v)", action, service.ControlAction)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	return nil
}
