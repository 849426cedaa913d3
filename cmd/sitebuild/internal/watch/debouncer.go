// Package watch rebuilds the site when source assets change.
package watch

import (
	"sync"
	"time"
)

// MaxPending is the number of distinct pending keys that forces an
// immediate flush.
const MaxPending = 1000

// Debouncer coalesces bursts of change events into one flush per window.
// Keys are source tags; each key is reported once per flush.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(keys []string)
	stopped bool
}

// NewDebouncer creates a debouncer that calls onFlush once the window has
// passed without new events.
func NewDebouncer(window time.Duration, onFlush func(keys []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change for key and restarts the window.
func (d *Debouncer) Add(key string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[key] = struct{}{}

	if len(d.pending) >= MaxPending {
		d.stopTimerLocked()
		keys := d.takeLocked()
		d.mu.Unlock()
		d.call(keys)
		return
	}

	// A timer that already fired runs flush with an empty set, which is a no-op.
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.flush)
	d.mu.Unlock()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	keys := d.takeLocked()
	d.mu.Unlock()
	d.call(keys)
}

// FlushNow reports pending keys without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	keys := d.takeLocked()
	d.mu.Unlock()
	d.call(keys)
}

// Stop flushes pending keys and ignores later events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.stopTimerLocked()
	keys := d.takeLocked()
	d.mu.Unlock()
	d.call(keys)
}

// PendingCount returns the number of keys waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// takeLocked empties the pending set. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]struct{})
	return keys
}

// call runs the handler without holding the lock.
func (d *Debouncer) call(keys []string) {
	if len(keys) > 0 && d.onFlush != nil {
		d.onFlush(keys)
	}
}
