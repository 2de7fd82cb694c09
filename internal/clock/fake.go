package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock.  Time only moves when Advance is
// called.  AfterFunc callbacks run synchronously inside Advance, in
// deadline order, with no lock held, so a callback may schedule further
// timers.  A callback registered with d <= 0 runs on the next Advance,
// including Advance(0).
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	callback func()
	ticks    chan time.Time
	interval time.Duration
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run once the clock reaches now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	w := &waiter{deadline: c.current.Add(d), callback: f}
	c.waiters = append(c.waiters, w)
	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// NewTicker returns a ticker that fires each time the clock passes a
// multiple of d.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	w := &waiter{deadline: c.current.Add(d), ticks: ch, interval: d}
	c.waiters = append(c.waiters, w)
	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
	}}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is not after the new time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due []*waiter
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped || w.fired {
			continue
		}
		if w.deadline.After(now) {
			live = append(live, w)
			continue
		}
		due = append(due, w)
		if w.interval > 0 {
			live = append(live, w)
		}
	}
	c.waiters = live

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	var callbacks []func()
	for _, w := range due {
		if w.interval > 0 {
			for !w.deadline.After(now) {
				select {
				case w.ticks <- w.deadline:
				default:
				}
				w.deadline = w.deadline.Add(w.interval)
			}
			continue
		}
		w.fired = true
		callbacks = append(callbacks, w.callback)
	}
	c.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// Pending returns the number of timers that have not fired or been
// stopped.  Tickers are not counted.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if w.interval == 0 && !w.stopped && !w.fired {
			n++
		}
	}
	return n
}
