// Package daemon runs the long-lived process that keeps the lookout watching
// the right sirens, turns detections into blocks and ends sessions on time.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/detection"
	"github.com/tiedsiren/tiedsiren/internal/lookout"
	"github.com/tiedsiren/tiedsiren/internal/state"
	"github.com/tiedsiren/tiedsiren/internal/tier"
)

// Options configures a Daemon.
type Options struct {
	// DataDir holds state.db, the PID file and the default spool.
	DataDir string
	Config  config.Config
	Logger  *log.Logger
	// Lookout overrides the spool lookout. If it also has Start/Stop methods
	// they are called for the lifetime of Run.
	Lookout lookout.Lookout
	// Notifier overrides the platform desktop notifier.
	Notifier tier.DesktopNotifier
	// Now overrides the clock.
	Now func() time.Time
}

type runnable interface {
	Start(ctx context.Context) error
	Stop() error
}

// newWatcher is swapped out by tests that need the watcher to fail.
var newWatcher = NewWatcher

// Daemon owns the database, state store, lookout and enforcement pipeline.
type Daemon struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	db    *db.DB
	store *state.Store

	refreshMu sync.Mutex
	ready     chan struct{}
}

// New validates opts and returns a daemon ready to Run.
func New(opts Options) (*Daemon, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := config.Validate(opts.Config); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Daemon{
		opts:   opts,
		logger: logger.WithPrefix("daemon"),
		now:    now,
		ready:  make(chan struct{}),
	}, nil
}

// Ready is closed once Run has wired every component and done the first
// refresh.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Store returns the state store while Run is active.
func (d *Daemon) Store() *state.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store
}

// Run wires every component and blocks until ctx is done. It may be called
// once per Daemon.
func (d *Daemon) Run(ctx context.Context) (err error) {
	cfg := d.opts.Config
	dataDir := d.opts.DataDir
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidFile := PIDFile(dataDir)
	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(pidFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			d.logger.Warn("remove pid file", "error", rmErr)
		}
	}()

	dbConn, err := db.OpenAndMigrate(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return err
	}
	defer dbConn.Close()

	store := state.NewStore(state.WithLogger(d.logger.WithPrefix("state")), state.WithClock(d.now))
	defer store.Close()

	d.mu.Lock()
	d.db = dbConn
	d.store = store
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.db = nil
		d.store = nil
		d.mu.Unlock()
	}()

	lk := d.opts.Lookout
	if lk == nil {
		spool, err := lookout.NewSpool(cfg.SpoolDir(dataDir), lookout.WithSpoolLogger(d.logger.WithPrefix("lookout")))
		if err != nil {
			return err
		}
		defer spool.Stop()
		lk = spool
	}

	d.pruneHistory(dbConn)

	blockers := []tier.Blocker{historyBlocker(dbConn)}
	if cfg.Notifications.DesktopEnabled {
		cooldown := time.Duration(cfg.Notifications.CooldownSeconds) * time.Second
		blockers = append(blockers, tier.NewNotifyBlocker(d.opts.Notifier, cooldown, d.logger.WithPrefix("notify")))
	}
	enforcer := tier.NewEnforcer(store, tier.Multi(blockers...), tier.WithEnforcerLogger(d.logger.WithPrefix("enforcer")))
	if err := enforcer.Start(ctx); err != nil {
		return err
	}
	defer enforcer.Stop()

	listener := detection.Register(lk, store,
		detection.WithLogger(d.logger.WithPrefix("detection")),
		detection.WithClock(d.now))
	defer listener.Close()

	d.refresh(ctx, dbConn, store, lk, "startup")

	if r, ok := lk.(runnable); ok {
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("start lookout: %w", err)
		}
		defer r.Stop()
	}

	expCfg := ExpiryConfigFromConfig(cfg)
	expCfg.Logger = d.logger.WithPrefix("expiry")
	expCfg.Notifier = d.opts.Notifier
	expCfg.Now = d.now
	expCfg.OnExpired = func(ctx context.Context, _ []core.SessionSummary) {
		d.refresh(ctx, dbConn, store, lk, "session expired")
	}
	expiry := NewExpiryHandler(dbConn, expCfg)
	if err := expiry.Start(ctx); err != nil {
		return err
	}
	defer expiry.Stop()

	var watchDone chan struct{}
	if cfg.Daemon.UseFileWatcher {
		w, err := newWatcher(dataDir)
		if err != nil {
			return err
		}
		w.logger = d.logger.WithPrefix("watcher")
		if err := w.Start(ctx); err != nil {
			return err
		}
		watchDone = make(chan struct{})
		go func() {
			defer close(watchDone)
			d.consumeWatcher(ctx, w, dbConn, store, lk)
		}()
		defer func() {
			_ = w.Stop()
			<-watchDone
		}()
	}

	d.logger.Info("daemon started",
		"data_dir", dataDir,
		"pid", os.Getpid(),
		"file_watcher", cfg.Daemon.UseFileWatcher,
		"notifications", cfg.Notifications.DesktopEnabled)
	close(d.ready)

	// Sessions scheduled to start later have no file event, so refresh on a
	// timer as well.
	ticker := time.NewTicker(expCfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping", "blocked", store.Snapshot().BlockedCount, "detections", listener.Stats().Detected)
			return nil
		case <-ticker.C:
			d.refresh(ctx, dbConn, store, lk, "tick")
		}
	}
}

func (d *Daemon) consumeWatcher(ctx context.Context, w *Watcher, dbConn *db.DB, store *state.Store, lk lookout.Lookout) {
	changes, errs := w.Changes(), w.Errors()
	for changes != nil || errs != nil {
		select {
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			d.logger.Debug("data dir changed", "kind", c.Kind.String(), "files", c.Files)
			if c.Kind.Has(ChangeConfig) {
				d.logger.Warn("config.toml changed; restart the daemon to apply it")
			}
			if c.Kind.Has(ChangeState) {
				d.refresh(ctx, dbConn, store, lk, "state changed")
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// refresh serializes recomputation so an older result never overwrites a
// newer one.
func (d *Daemon) refresh(ctx context.Context, dbConn *db.DB, store *state.Store, lk lookout.Lookout, reason string) {
	if ctx.Err() != nil {
		return
	}
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	res, err := core.Refresh(ctx, dbConn, store, lk, d.now())
	if err != nil {
		d.logger.Error("refresh failed", "reason", reason, "error", err)
		return
	}
	d.logger.Debug("refreshed", "reason", reason, "phase", res.Phase, "watched", res.Watched.Len(), "locked", res.Locked.Len())
}

func (d *Daemon) pruneHistory(dbConn *db.DB) {
	days := d.opts.Config.History.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := d.now().AddDate(0, 0, -days)
	n, err := dbConn.PruneLaunches(cutoff)
	if err != nil {
		d.logger.Warn("prune launch history", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("pruned launch history", "removed", n, "before", cutoff.Format(time.RFC3339))
	}
}

// historyBlocker records every blocked launch in launch_events.
func historyBlocker(dbConn *db.DB) tier.Blocker {
	return tier.BlockerFunc(func(_ context.Context, app state.LaunchedApp) error {
		return dbConn.RecordLaunch(&db.LaunchEvent{
			Identifier: app.Identifier,
			Category:   app.Category,
			DetectedAt: app.DetectedAt,
		})
	})
}
