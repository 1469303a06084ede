package reconcile

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of trigger signals into one callback invocation
// on the trailing edge of the interval.
type Debouncer struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer constructs a debouncer invoking fn once per settled burst.
func NewDebouncer(interval time.Duration, fn func()) *Debouncer {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Debouncer{interval: interval, fn: fn}
}

// Trigger (re)arms the debounce window. fn fires interval after the last
// Trigger call.
func (d *Debouncer) Trigger() {
	if d == nil || d.fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fn)
}

// Stop cancels any pending invocation and rejects further triggers.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
