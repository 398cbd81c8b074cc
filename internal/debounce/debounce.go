// Package debounce provides timers keyed by an identifier, where each new
// trigger for a key cancels and replaces the pending one.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recent function triggered for a key once the key
// has been quiet for the configured interval. Keys are independent.
type Debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

type entry struct {
	timer *time.Timer
}

// New creates a Debouncer with the given quiet interval.
func New(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		pending:  make(map[string]*entry),
	}
}

// Interval returns the configured quiet interval.
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Trigger schedules fn for key, cancelling any call still pending for key.
// It is a no-op after Stop.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cur, ok := d.pending[key]
		// A timer that fired while being replaced must not run.
		if !ok || cur != e {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
	d.pending[key] = e
}

// Cancel drops the pending call for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending call and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
}
