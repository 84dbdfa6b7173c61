package compute

import (
	"sync"
	"time"
)

// DefaultDebounce is how long input must be quiet before a recomputation
// fires. Tuned for drag gestures: long enough to coalesce intermediate
// positions, short enough to feel immediate.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces bursts of input changes into a single trailing call.
// Each Schedule cancels the pending one, so only the last function scheduled
// before a quiet period runs.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a Debouncer. A non-positive delay falls back to
// DefaultDebounce.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Schedule runs fn after the debounce delay, cancelling any previously
// scheduled call that has not fired yet. fn runs on a timer goroutine.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Cancel stops any pending call without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
