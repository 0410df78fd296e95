package autosave

import (
	"sync"
	"time"
)

// debouncer coalesces rapid triggers into a single delayed invocation:
// classic trailing-edge debounce, no leading-edge or max-wait variant.
// Each new trigger cancels any pending invocation and reschedules it.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// Trigger schedules fn to run after the quiet period, superseding any
// previously scheduled invocation.
func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels any pending invocation; no orphaned execution after teardown.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
