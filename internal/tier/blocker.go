// Package tier turns launches recorded in the state store into blocking
// actions and clears them once handled.
package tier

import (
	"context"
	"sync"

	"github.com/tiedsiren/tiedsiren/internal/state"
)

// Blocker reacts to a launched siren.
type Blocker interface {
	Block(ctx context.Context, app state.LaunchedApp) error
}

// BlockerFunc adapts a function to Blocker.
type BlockerFunc func(ctx context.Context, app state.LaunchedApp) error

func (f BlockerFunc) Block(ctx context.Context, app state.LaunchedApp) error {
	return f(ctx, app)
}

// Recorder is an in-memory Blocker that remembers every launch it saw.
type Recorder struct {
	mu   sync.Mutex
	apps []state.LaunchedApp
	err  error
}

func (r *Recorder) Block(_ context.Context, app state.LaunchedApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps = append(r.apps, app)
	return r.err
}

// Blocked returns the launches seen so far.
func (r *Recorder) Blocked() []state.LaunchedApp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.LaunchedApp(nil), r.apps...)
}

// Fail makes subsequent Block calls return err (nil to reset).
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Multi calls every blocker in order and returns the first error.
func Multi(blockers ...Blocker) Blocker {
	return BlockerFunc(func(ctx context.Context, app state.LaunchedApp) error {
		var first error
		for _, b := range blockers {
			if b == nil {
				continue
			}
			if err := b.Block(ctx, app); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
