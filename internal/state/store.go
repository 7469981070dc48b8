// Package state holds the process-wide application state as an explicitly
// owned, single-writer container. Commands are applied sequentially and
// subscribers observe every resulting state in order.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

var (
	// ErrUnknownSiren is returned when a launched identifier is not watched.
	ErrUnknownSiren = errors.New("identifier is not a watched siren")
	// ErrInvalidCommand is returned for malformed or unsupported commands.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrClosed is returned when dispatching to a closed store.
	ErrClosed = errors.New("store is closed")
)

// LaunchedApp is the most recent watched target detected in use.
type LaunchedApp struct {
	Identifier string         `json:"identifier"`
	Category   siren.Category `json:"category"`
	DetectedAt time.Time      `json:"detected_at"`
	// Seq increases by one for every accepted launch.
	Seq uint64 `json:"seq"`
}

// State is a snapshot of application state.
type State struct {
	Watched      siren.Sirens        `json:"watched"`
	Locked       *siren.LockedSirens `json:"-"`
	LaunchedApp  *LaunchedApp        `json:"launched_app,omitempty"`
	BlockedCount uint64              `json:"blocked_count"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp launches.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the single owner of application state.
type Store struct {
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	closed   bool
	subs     map[int]func(State)
	nextSub  int
	queue    []State
	draining bool
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger: log.Default().WithPrefix("state"),
		now:    time.Now,
		state:  State{Watched: siren.Empty()},
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch applies cmd and notifies subscribers. Subscribers may dispatch
// further commands; those are applied immediately and their notifications are
// delivered after the current one, preserving order.
func (s *Store) Dispatch(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.apply(cmd); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	s.queue = append(s.queue, cloneState(s.state))
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return nil
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		subs := s.subscribersLocked()
		s.mu.Unlock()

		for _, fn := range subs {
			s.notify(fn, next)
		}
	}
}

// notify calls one subscriber. A panicking subscriber is logged and skipped
// so the others, and later commands, are still delivered.
func (s *Store) notify(fn func(State), st State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "panic", r)
		}
	}()
	fn(st)
}

func (s *Store) apply(cmd Command) error {
	switch c := cmd.(type) {
	case BlockLaunchedApp:
		return s.applyLaunch(c)
	case *BlockLaunchedApp:
		return s.applyLaunch(*c)
	case SetWatchedSirens:
		s.state.Watched = siren.Merge(c.Sirens)
	case SetLockedSirens:
		s.state.Locked = cloneLocked(c.Locked)
	case ClearLaunchedApp:
		s.state.LaunchedApp = nil
	default:
		return fmt.Errorf("%w: unsupported command %T", ErrInvalidCommand, cmd)
	}
	return nil
}

func (s *Store) applyLaunch(c BlockLaunchedApp) error {
	id := strings.TrimSpace(c.Identifier)
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidCommand)
	}
	cat, ok := s.state.Watched.Find(id)
	if !ok {
		s.logger.Debug("ignoring launch of unwatched identifier", "identifier", id)
		return fmt.Errorf("%w: %s", ErrUnknownSiren, id)
	}
	at := c.DetectedAt
	if at.IsZero() {
		at = s.now()
	}
	s.state.BlockedCount++
	s.state.LaunchedApp = &LaunchedApp{
		Identifier: id,
		Category:   cat,
		DetectedAt: at.UTC(),
		Seq:        s.state.BlockedCount,
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Subscribe registers fn to observe every applied command. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Close rejects further dispatches and drops all subscribers.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]func(State))
	return nil
}

// subscribersLocked returns subscribers in registration order.
func (s *Store) subscribersLocked() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func cloneState(in State) State {
	out := State{
		Watched:      siren.Merge(in.Watched),
		Locked:       cloneLocked(in.Locked),
		BlockedCount: in.BlockedCount,
	}
	if in.LaunchedApp != nil {
		app := *in.LaunchedApp
		out.LaunchedApp = &app
	}
	return out
}

func cloneLocked(in *siren.LockedSirens) *siren.LockedSirens {
	if in == nil {
		return nil
	}
	return &siren.LockedSirens{
		Android:  siren.NewSet(in.Android.Sorted()...),
		Websites: siren.NewSet(in.Websites.Sorted()...),
		Keywords: siren.NewSet(in.Keywords.Sorted()...),
	}
}
