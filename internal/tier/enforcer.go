package tier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/state"
)

// DefaultBlockTimeout bounds a single Block call.
const DefaultBlockTimeout = 10 * time.Second

// Source is the part of the store the enforcer needs.
type Source interface {
	state.Dispatcher
	Subscribe(fn func(state.State)) (unsubscribe func())
}

// Enforcer blocks every new launch recorded in the store, then clears it.
//
// Launches are handed from the store subscriber to a single worker goroutine,
// so Block never runs while the store is notifying.
type Enforcer struct {
	source  Source
	blocker Blocker
	logger  *log.Logger
	timeout time.Duration

	launches chan state.LaunchedApp

	mu          sync.Mutex
	lastSeq     uint64
	running     bool
	unsubscribe func()
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// EnforcerOption configures an Enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerLogger sets the enforcer logger.
func WithEnforcerLogger(logger *log.Logger) EnforcerOption {
	return func(e *Enforcer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBlockTimeout bounds each Block call.
func WithBlockTimeout(d time.Duration) EnforcerOption {
	return func(e *Enforcer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEnforcer creates an enforcer. Call Start to begin enforcing.
func NewEnforcer(source Source, blocker Blocker, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		source:   source,
		blocker:  blocker,
		logger:   log.Default().WithPrefix("enforcer"),
		timeout:  DefaultBlockTimeout,
		launches: make(chan state.LaunchedApp, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the store and runs the worker until ctx is done or Stop
// is called.
func (e *Enforcer) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("enforcer already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.unsubscribe = e.source.Subscribe(e.observe)

	go e.run(ctx, e.stopCh, e.doneCh)
	return nil
}

// Stop unsubscribes and waits for the worker to exit. Queued launches that
// were not handled yet are dropped.
func (e *Enforcer) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.unsubscribe()
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done
}

func (e *Enforcer) observe(st state.State) {
	if st.LaunchedApp == nil {
		return
	}
	e.mu.Lock()
	if st.LaunchedApp.Seq <= e.lastSeq {
		e.mu.Unlock()
		return
	}
	e.lastSeq = st.LaunchedApp.Seq
	e.mu.Unlock()

	select {
	case e.launches <- *st.LaunchedApp:
	default:
		e.logger.Warn("enforcer backlog full, launch dropped", "identifier", st.LaunchedApp.Identifier)
	}
}

func (e *Enforcer) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case app := <-e.launches:
			e.enforce(ctx, app)
		}
	}
}

func (e *Enforcer) enforce(ctx context.Context, app state.LaunchedApp) {
	blockCtx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.blocker.Block(blockCtx, app)
	cancel()
	if err != nil {
		e.logger.Warn("block failed", "identifier", app.Identifier, "category", app.Category, "error", err)
	} else {
		e.logger.Info("blocked", "identifier", app.Identifier, "category", app.Category)
	}

	if err := e.source.Dispatch(ctx, state.ClearLaunchedApp{}); err != nil {
		e.logger.Warn("clear launched app failed", "error", err)
	}
}
