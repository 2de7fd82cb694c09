// Package scheduler drives the time-based side of the ticketing engine:
// one-shot deadline timers and the periodic recovery sweeps.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
)

// DefaultCallbackTimeout bounds a single timer callback.
const DefaultCallbackTimeout = 30 * time.Second

// Timers is an in-process registry of one-shot callbacks keyed by name.
// Scheduling an existing key replaces its callback.  Timers do not
// survive a restart; the owner re-arms them from the store.
type Timers struct {
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*timerEntry
	stopped bool
	wg      sync.WaitGroup
}

type timerEntry struct {
	timer *clock.Timer
}

// NewTimers returns an empty registry driven by clk.
func NewTimers(clk clock.Clock, logger *slog.Logger) *Timers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timers{
		clock:   clk,
		logger:  logger.With("component", "timers"),
		timeout: DefaultCallbackTimeout,
		pending: map[string]*timerEntry{},
	}
}

// Schedule arms fn to run at at.  A deadline in the past fires as soon
// as the clock allows.
func (t *Timers) Schedule(key string, at time.Time, fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if old, ok := t.pending[key]; ok {
		old.timer.Stop()
	}
	e := &timerEntry{}
	e.timer = t.clock.AfterFunc(at.Sub(t.clock.Now()), func() { t.fire(key, e, fn) })
	t.pending[key] = e
}

// Cancel disarms key if it is pending.
func (t *Timers) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.pending[key]; ok {
		e.timer.Stop()
		delete(t.pending, key)
	}
}

// Len returns the number of armed timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop disarms every timer, refuses new ones and waits for running
// callbacks to return.
func (t *Timers) Stop() {
	t.mu.Lock()
	t.stopped = true
	for key, e := range t.pending {
		e.timer.Stop()
		delete(t.pending, key)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Timers) fire(key string, e *timerEntry, fn func(ctx context.Context)) {
	t.mu.Lock()
	if t.stopped || t.pending[key] != e {
		// Replaced, cancelled or shutting down.
		t.mu.Unlock()
		return
	}
	delete(t.pending, key)
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("timer callback panicked", "key", key, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.logger.Debug("timer fired", "key", key)
	fn(ctx)
}
