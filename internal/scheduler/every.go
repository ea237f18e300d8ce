package scheduler

import (
	"sync"
	"time"
)

// Every gates a listener to fire at most once per interval of tick time.
// The first tick only arms the gate.
type Every struct {
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

// NewEvery creates a gate for the given interval.
func NewEvery(interval time.Duration) *Every {
	return &Every{interval: interval}
}

// Due reports whether now is at least one interval past the last firing,
// and if so records now as the new firing time.
func (e *Every) Due(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last.IsZero() {
		e.last = now
		return false
	}
	if now.Sub(e.last) < e.interval {
		return false
	}
	e.last = now
	return true
}
