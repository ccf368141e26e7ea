package clock

import (
	"sync"
	"time"
)

// SuspendableTimer tracks elapsed time against a budget, and can be
// paused and resumed without losing the time already consumed. The
// optimizer uses one per run, with the run's hard timeout as budget,
// checks it between generations, and never pauses it.
type SuspendableTimer struct {
	mu        sync.Mutex
	clock     Clock
	budget    time.Duration
	spent     time.Duration
	startedAt time.Time
	running   bool
}

// NewSuspendableTimer creates a timer for the given budget, started
// immediately.
func NewSuspendableTimer(c Clock, budget time.Duration) *SuspendableTimer {
	return &SuspendableTimer{clock: c, budget: budget, startedAt: c.Now(), running: true}
}

// Pause stops the clock accruing against the budget.
func (t *SuspendableTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.spent += t.clock.Now().Sub(t.startedAt)
	t.running = false
}

// Resume restarts accrual from now.
func (t *SuspendableTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.startedAt = t.clock.Now()
	t.running = true
}

// Remaining returns the budget left, never negative.
func (t *SuspendableTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	spent := t.spent
	if t.running {
		spent += t.clock.Now().Sub(t.startedAt)
	}
	remaining := t.budget - spent
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the budget has been exhausted.
func (t *SuspendableTimer) Expired() bool {
	return t.Remaining() <= 0
}
