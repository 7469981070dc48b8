package state

import (
	"context"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// Command is an instruction applied to the Store.
type Command interface {
	// Name identifies the command in logs.
	Name() string
}

// Dispatcher applies commands to application state. Commands issued by a
// single caller are applied in the order they were issued.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, cmd Command) error

func (f DispatcherFunc) Dispatch(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// BlockLaunchedApp reports that a watched target was detected in use.
type BlockLaunchedApp struct {
	Identifier string
	// DetectedAt defaults to the store clock when zero.
	DetectedAt time.Time
}

func (BlockLaunchedApp) Name() string { return "block_launched_app" }

// SetWatchedSirens replaces the sirens currently being watched.
type SetWatchedSirens struct {
	Sirens siren.Sirens
}

func (SetWatchedSirens) Name() string { return "set_watched_sirens" }

// SetLockedSirens replaces the strict-mode lock view. A nil Locked clears it.
type SetLockedSirens struct {
	Locked *siren.LockedSirens
}

func (SetLockedSirens) Name() string { return "set_locked_sirens" }

// ClearLaunchedApp acknowledges that the last launched app was handled.
type ClearLaunchedApp struct{}

func (ClearLaunchedApp) Name() string { return "clear_launched_app" }
