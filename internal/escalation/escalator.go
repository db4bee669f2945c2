package escalation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
)

// DefaultMaxAttempts bounds how often an unresolved item is escalated.
const DefaultMaxAttempts = 3

// Escalator re-fires a reminder every delay until the item is resolved, cancelled
// or has been escalated MaxAttempts times.
type Escalator struct {
	scheduler   *Scheduler
	maxAttempts int
	log         *zap.Logger

	mu      sync.Mutex
	watches map[string]*watch
	stopped bool
}

type watch struct {
	delay    time.Duration
	resolved func() bool
	fire     func(attempt int)
	attempts int
	timer    *Timer
}

// NewEscalator constructs an Escalator. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewEscalator(scheduler *Scheduler, maxAttempts int) *Escalator {
	if scheduler == nil {
		scheduler = NewScheduler(nil)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Escalator{
		scheduler:   scheduler,
		maxAttempts: maxAttempts,
		log:         logger.WithModule("escalation"),
		watches:     make(map[string]*watch),
	}
}

// Watch starts escalating key. An existing watch for key is replaced.
// resolved is consulted before every firing; fire receives the 1-based attempt.
func (e *Escalator) Watch(key string, delay time.Duration, resolved func() bool, fire func(attempt int)) {
	e.WatchFrom(key, delay, delay, 0, resolved, fire)
}

// WatchFrom resumes escalating key after a restart. The first firing comes after
// first, later ones every delay. attempts already made count towards MaxAttempts,
// so nothing is armed once they are exhausted.
func (e *Escalator) WatchFrom(key string, first, delay time.Duration, attempts int, resolved func() bool, fire func(attempt int)) {
	if key == "" || fire == nil {
		return
	}
	if resolved == nil {
		resolved = func() bool { return false }
	}
	if first < 0 {
		first = 0
	}
	if attempts < 0 {
		attempts = 0
	}

	w := &watch{delay: delay, resolved: resolved, fire: fire, attempts: attempts}

	e.mu.Lock()
	if e.stopped || attempts >= e.maxAttempts {
		e.mu.Unlock()
		return
	}
	previous := e.watches[key]
	e.watches[key] = w
	e.armLocked(key, w, first)
	e.mu.Unlock()

	if previous != nil {
		previous.timer.Cancel()
	}
}

func (e *Escalator) armLocked(key string, w *watch, delay time.Duration) {
	w.timer = e.scheduler.Schedule(delay, func() { e.tick(key, w) })
}

func (e *Escalator) tick(key string, w *watch) {
	if !e.isCurrent(key, w) {
		return
	}
	if w.resolved() {
		e.forget(key, w)
		return
	}

	e.mu.Lock()
	w.attempts++
	attempt := w.attempts
	e.mu.Unlock()

	metrics.EscalationsFired.Inc()
	e.log.Info("escalating", zap.String("key", key), zap.Int("attempt", attempt))
	e.invoke(key, w, attempt)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watches[key] != w {
		return
	}
	if attempt >= e.maxAttempts {
		delete(e.watches, key)
		e.log.Warn("escalation attempts exhausted", zap.String("key", key), zap.Int("attempts", attempt))
		return
	}
	e.armLocked(key, w, w.delay)
}

func (e *Escalator) invoke(key string, w *watch, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("escalation callback panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	w.fire(attempt)
}

func (e *Escalator) isCurrent(key string, w *watch) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watches[key] == w
}

func (e *Escalator) forget(key string, w *watch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watches[key] == w {
		delete(e.watches, key)
	}
}

// Cancel stops escalating key. It reports whether a watch was active.
func (e *Escalator) Cancel(key string) bool {
	e.mu.Lock()
	w, ok := e.watches[key]
	delete(e.watches, key)
	e.mu.Unlock()

	if !ok {
		return false
	}
	w.timer.Cancel()
	return true
}

// Attempts reports how many times key has fired so far.
func (e *Escalator) Attempts(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.watches[key]; ok {
		return w.attempts
	}
	return 0
}

// Pending returns the number of active watches.
func (e *Escalator) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.watches)
}

// Stop cancels every watch and rejects new ones.
func (e *Escalator) Stop() {
	e.mu.Lock()
	e.stopped = true
	watches := e.watches
	e.watches = make(map[string]*watch)
	e.mu.Unlock()

	for _, w := range watches {
		w.timer.Cancel()
	}
}
