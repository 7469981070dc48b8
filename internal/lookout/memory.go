package lookout

import (
	"context"
	"sync"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// Memory is an in-process Lookout. Detect fires subscribers synchronously.
type Memory struct {
	subs registry

	mu         sync.Mutex
	watched    siren.Sirens
	watchCalls int
	watchErr   error
}

// NewMemory returns an empty in-memory lookout.
func NewMemory() *Memory {
	return &Memory{watched: siren.Empty()}
}

func (m *Memory) OnSirenDetected(fn DetectionFunc) func() {
	return m.subs.add(fn)
}

func (m *Memory) OnSirenDetectedAt(fn TimedDetectionFunc) func() {
	return m.subs.addTimed(fn)
}

func (m *Memory) WatchSirens(ctx context.Context, sirens siren.Sirens) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchCalls++
	if m.watchErr != nil {
		return m.watchErr
	}
	m.watched = siren.Merge(sirens)
	return nil
}

// Detect simulates a detection of identifier without a monitor timestamp.
func (m *Memory) Detect(identifier string) {
	m.subs.fire(identifier, time.Time{})
}

// DetectAt simulates a detection the monitor saw at at.
func (m *Memory) DetectAt(identifier string, at time.Time) {
	m.subs.fire(identifier, at)
}

// Watched returns the last sirens passed to WatchSirens.
func (m *Memory) Watched() siren.Sirens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return siren.Merge(m.watched)
}

// WatchCalls returns how many times WatchSirens was called.
func (m *Memory) WatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchCalls
}

// FailWatch makes subsequent WatchSirens calls return err (nil to reset).
func (m *Memory) FailWatch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchErr = err
}

// Subscribers returns the number of active detection subscriptions.
func (m *Memory) Subscribers() int {
	return m.subs.len()
}
