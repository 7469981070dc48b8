package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/tier"
)

// DefaultCheckInterval is the default interval for checking expired sessions.
const DefaultCheckInterval = 30 * time.Second

// ExpiryHandlerConfig configures the expiry handler.
type ExpiryHandlerConfig struct {
	// CheckInterval is how often to look for expired sessions.
	CheckInterval time.Duration
	// DesktopNotify enables a notification when a session ends.
	DesktopNotify bool
	Notifier      tier.DesktopNotifier
	Logger        *log.Logger
	// OnExpired runs after at least one session was ended.
	OnExpired func(ctx context.Context, ended []core.SessionSummary)
	Now       func() time.Time
}

// ExpiryConfigFromConfig creates an ExpiryHandlerConfig from the app config.
func ExpiryConfigFromConfig(cfg config.Config) ExpiryHandlerConfig {
	interval := time.Duration(cfg.Daemon.ExpiryCheckSeconds) * time.Second
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return ExpiryHandlerConfig{
		CheckInterval: interval,
		DesktopNotify: cfg.Notifications.DesktopEnabled,
	}
}

// ExpiryHandler ends sessions that reached their end time.
type ExpiryHandler struct {
	db     *db.DB
	config ExpiryHandlerConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExpiryHandler creates a new expiry handler.
func NewExpiryHandler(database *db.DB, cfg ExpiryHandlerConfig) *ExpiryHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("expiry")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Notifier == nil {
		cfg.Notifier = tier.DesktopNotifierFunc(tier.SendDesktopNotification)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExpiryHandler{
		db:     database,
		config: cfg,
		logger: logger,
	}
}

// Start begins the checker goroutine and returns immediately.
func (h *ExpiryHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("expiry handler already running")
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.mu.Unlock()

	go h.run(ctx, h.stopCh, h.doneCh)
	h.logger.Info("expiry handler started", "interval", h.config.CheckInterval)
	return nil
}

// Stop stops the checker and waits for it to exit.
func (h *ExpiryHandler) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	close(h.stopCh)
	h.running = false
	done := h.doneCh
	h.mu.Unlock()

	<-done
	h.logger.Info("expiry handler stopped")
}

// IsRunning returns true if the handler is running.
func (h *ExpiryHandler) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *ExpiryHandler) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(h.config.CheckInterval)
	defer ticker.Stop()

	h.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check ends every expired session once and returns the ones it ended.
func (h *ExpiryHandler) Check(ctx context.Context) []core.SessionSummary {
	res, err := core.ExpireSessions(h.db, core.ExpireOptions{Now: h.config.Now()})
	if err != nil {
		h.logger.Error("failed to expire sessions", "error", err)
		return nil
	}

	ended := make([]core.SessionSummary, 0, len(res.EndedIDs))
	endedIDs := make(map[string]struct{}, len(res.EndedIDs))
	for _, id := range res.EndedIDs {
		endedIDs[id] = struct{}{}
	}
	for _, s := range res.Sessions {
		if _, ok := endedIDs[s.ID]; !ok {
			continue
		}
		ended = append(ended, s)
		h.logger.Info("session ended", "session_id", s.ID, "name", s.Name, "strict", s.StrictMode, "ends_at", s.EndsAt)
		if h.config.DesktopNotify {
			h.sendDesktopNotification(s)
		}
	}

	if len(ended) > 0 && h.config.OnExpired != nil {
		h.config.OnExpired(ctx, ended)
	}
	return ended
}

func (h *ExpiryHandler) sendDesktopNotification(s core.SessionSummary) {
	name := s.Name
	if name == "" {
		name = truncateID(s.ID, 8)
	}
	title := "Tied Siren: session ended"
	body := fmt.Sprintf("Session %s is over. Your sirens are unblocked.", name)
	if err := h.config.Notifier.Notify(title, body); err != nil {
		h.logger.Debug("desktop notification failed", "error", err)
	}
}

// truncateID safely truncates an ID to maxLen characters.
func truncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
