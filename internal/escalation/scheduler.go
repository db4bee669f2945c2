// Package escalation schedules delayed reminders for unacknowledged alerts.
package escalation

import (
	"sync"
	"time"
)

// Stopper cancels a pending callback. *time.Timer implements it.
type Stopper interface {
	Stop() bool
}

// AfterFunc arranges for f to run once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Scheduler creates cancellable one-shot timers.
type Scheduler struct {
	after AfterFunc
}

// NewScheduler constructs a Scheduler. A nil after uses the wall clock.
func NewScheduler(after AfterFunc) *Scheduler {
	if after == nil {
		after = realAfterFunc
	}
	return &Scheduler{after: after}
}

// Timer is a handle to one scheduled callback.
type Timer struct {
	mu        sync.Mutex
	stopper   Stopper
	fired     bool
	cancelled bool
}

// Schedule runs fn once after delay unless the returned timer is cancelled first.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) *Timer {
	if delay < 0 {
		delay = 0
	}
	t := &Timer{}
	stopper := s.after(delay, func() {
		t.mu.Lock()
		if t.cancelled || t.fired {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	t.stopper = stopper
	t.mu.Unlock()
	return t
}

// Cancel prevents the callback from running. It reports whether this call cancelled
// a pending timer; cancelling a fired or already cancelled timer returns false.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	if t.fired || t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	stopper := t.stopper
	t.mu.Unlock()

	if stopper != nil {
		stopper.Stop()
	}
	return true
}

// Fired reports whether the callback has started.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Cancelled reports whether Cancel stopped the timer.
func (t *Timer) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
