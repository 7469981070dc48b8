// Package lookout defines the capability that detects use of watched sirens,
// plus an in-memory implementation and a spool-directory bridge to the native
// monitoring module.
package lookout

import (
	"context"
	"sync"
	"time"

	"github.com/tiedsiren/tiedsiren/internal/siren"
)

// DetectionFunc receives one target identifier per detection.
type DetectionFunc func(identifier string)

// TimedDetectionFunc receives the identifier and the time the monitor saw it.
// A zero time means the monitor did not say.
type TimedDetectionFunc func(identifier string, at time.Time)

// Lookout detects when a watched siren is in use.
type Lookout interface {
	// OnSirenDetected registers fn for detection events. The returned function
	// removes the registration.
	OnSirenDetected(fn DetectionFunc) (unsubscribe func())
	// WatchSirens (re)configures which identifiers are watched.
	WatchSirens(ctx context.Context, sirens siren.Sirens) error
}

// TimedLookout is implemented by lookouts that report when each detection
// happened, which can be well before it is delivered.
type TimedLookout interface {
	OnSirenDetectedAt(fn TimedDetectionFunc) (unsubscribe func())
}

// registry keeps detection callbacks in registration order.
type registry struct {
	mu   sync.Mutex
	next int
	fns  map[int]TimedDetectionFunc
}

func (r *registry) add(fn DetectionFunc) func() {
	if fn == nil {
		return func() {}
	}
	return r.addTimed(func(identifier string, _ time.Time) { fn(identifier) })
}

func (r *registry) addTimed(fn TimedDetectionFunc) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	if r.fns == nil {
		r.fns = make(map[int]TimedDetectionFunc)
	}
	id := r.next
	r.next++
	r.fns[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.fns, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry) snapshot() []TimedDetectionFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TimedDetectionFunc, 0, len(r.fns))
	for id := 0; id < r.next; id++ {
		if fn, ok := r.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fns)
}

func (r *registry) fire(identifier string, at time.Time) {
	for _, fn := range r.snapshot() {
		fn(identifier, at)
	}
}
