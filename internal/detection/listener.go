// Package detection bridges lookout detection events into state commands.
package detection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/lookout"
	"github.com/tiedsiren/tiedsiren/internal/state"
)

// DefaultDispatchTimeout bounds a single dispatch.
const DefaultDispatchTimeout = 5 * time.Second

// Stats counts listener outcomes.
type Stats struct {
	Detected   uint64 `json:"detected"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
}

// Listener forwards every detection as one BlockLaunchedApp command. It does
// not filter, validate or deduplicate identifiers; that is the command
// handler's job. Dispatch failures and panics are logged and swallowed so the
// subscription survives bad events.
type Listener struct {
	dispatcher state.Dispatcher
	logger     *log.Logger
	timeout    time.Duration
	now        func() time.Time

	detected   atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTimeout bounds each dispatch; zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Listener) { l.timeout = d }
}

// WithClock overrides the time source used to stamp detections.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

// Register subscribes a new Listener to lk. It stays registered until Close.
func Register(lk lookout.Lookout, dispatcher state.Dispatcher, opts ...Option) *Listener {
	l := &Listener{
		dispatcher: dispatcher,
		logger:     log.Default().WithPrefix("detection"),
		timeout:    DefaultDispatchTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if tl, ok := lk.(lookout.TimedLookout); ok {
		l.unsubscribe = tl.OnSirenDetectedAt(l.handleAt)
	} else {
		l.unsubscribe = lk.OnSirenDetected(l.handle)
	}
	return l
}

func (l *Listener) handle(identifier string) {
	l.handleAt(identifier, time.Time{})
}

// handleAt dispatches one detection. A zero at is stamped with the listener
// clock.
func (l *Listener) handleAt(identifier string, at time.Time) {
	l.detected.Add(1)
	if at.IsZero() {
		at = l.now()
	}
	if err := l.dispatch(identifier, at); err != nil {
		l.failed.Add(1)
		l.logger.Warn("dispatch failed", "identifier", identifier, "error", err)
		return
	}
	l.dispatched.Add(1)
	l.logger.Debug("launch dispatched", "identifier", identifier)
}

func (l *Listener) dispatch(identifier string, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()

	ctx := context.Background()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.dispatcher.Dispatch(ctx, state.BlockLaunchedApp{
		Identifier: identifier,
		DetectedAt: at.UTC(),
	})
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Detected:   l.detected.Load(),
		Dispatched: l.dispatched.Load(),
		Failed:     l.failed.Load(),
	}
}

// Close removes the subscription. It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		if l.unsubscribe != nil {
			l.unsubscribe()
		}
	})
	return nil
}
