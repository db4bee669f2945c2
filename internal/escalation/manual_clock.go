package escalation

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is an AfterFunc source driven by Advance. Callbacks run synchronously
// on the goroutine calling Advance, in due-time order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	pending map[uint64]*manualTimer
}

type manualTimer struct {
	id    uint64
	due   time.Time
	fn    func()
	clock *ManualClock
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.pending[t.id]; !ok {
		return false
	}
	delete(t.clock.pending, t.id)
	return true
}

// NewManualClock starts a clock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, pending: make(map[uint64]*manualTimer)}
}

// AfterFunc registers f to run when the clock passes now+d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &manualTimer{id: c.nextID, due: c.now.Add(d), fn: f, clock: c}
	c.pending[t.id] = t
	return t
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending returns the number of timers waiting to fire.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves the clock forward, firing every timer that comes due, including
// timers scheduled by callbacks within the advanced window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.pending, next.id)
		if next.due.After(c.now) {
			c.now = next.due
		}
		c.mu.Unlock()

		next.fn()
	}
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(c.pending))
	for _, t := range c.pending {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	return due[0]
}
