package autosave

import (
	"sync"
	"time"
)

// throttle caps the backend write rate: independent of the debounce delay, an
// attempt is rejected when fewer than interval have elapsed since the last
// successful save.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

func (t *throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.IsZero() {
		return true
	}
	return now.Sub(t.last) >= t.interval
}

// RecordSuccess marks a successful save; only successes move the window.
func (t *throttle) RecordSuccess(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = now
}
