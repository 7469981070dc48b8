package core

import (
	"context"
	"fmt"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/db"
	"github.com/tiedsiren/tiedsiren/internal/lookout"
	"github.com/tiedsiren/tiedsiren/internal/siren"
	"github.com/tiedsiren/tiedsiren/internal/state"
)

// RefreshResult reports what a refresh pushed downstream.
type RefreshResult struct {
	Phase   Phase
	Watched siren.Sirens
	Locked  *siren.LockedSirens
}

// Refresh recomputes watched and locked sirens at now, dispatches them to the
// store and reconfigures the lookout.
func Refresh(ctx context.Context, dbConn *db.DB, dispatcher state.Dispatcher, lk lookout.Lookout, now time.Time) (*RefreshResult, error) {
	active, err := dbConn.ListActiveBlockSessions(now)
	if err != nil {
		return nil, err
	}
	watched, err := WatchedSirens(dbConn, now)
	if err != nil {
		return nil, err
	}
	locked, err := LockedSirensAt(dbConn, now)
	if err != nil {
		return nil, err
	}

	if err := dispatcher.Dispatch(ctx, state.SetWatchedSirens{Sirens: watched}); err != nil {
		return nil, fmt.Errorf("dispatch watched sirens: %w", err)
	}
	if err := dispatcher.Dispatch(ctx, state.SetLockedSirens{Locked: locked}); err != nil {
		return nil, fmt.Errorf("dispatch locked sirens: %w", err)
	}
	if lk != nil {
		if err := lk.WatchSirens(ctx, watched); err != nil {
			return nil, fmt.Errorf("watch sirens: %w", err)
		}
	}

	return &RefreshResult{
		Phase:   PhaseAt(active, now),
		Watched: watched,
		Locked:  locked,
	}, nil
}
