// Package bus provides a synchronous fan-out of zero-argument change signals.
//
// Publish iterates over a snapshot of the listeners registered when it was called.
// A listener removed while a publish is in flight is skipped for the rest of that
// publish; a listener added while a publish is in flight first observes the next one.
package bus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
)

// Listener is invoked on every publish.
type Listener func()

type subscription struct {
	id     uint64
	fn     Listener
	active atomic.Bool
}

// Bus fans a publish out to every registered listener.
type Bus struct {
	name string
	log  *zap.Logger

	mu      sync.Mutex
	entries []*subscription
	nextID  uint64
	closed  bool
}

// New constructs a bus. The name only appears in logs.
func New(name string) *Bus {
	return &Bus{
		name: name,
		log:  logger.WithModule("bus").With(zap.String("bus", name)),
	}
}

// Subscribe registers fn and returns a function that removes it again.
// The returned function is safe to call more than once and from inside a listener.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	b.nextID++
	sub := &subscription{id: b.nextID, fn: fn}
	sub.active.Store(true)
	b.entries = append(b.entries, sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *Bus) remove(sub *subscription) {
	sub.active.Store(false)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.entries {
		if entry == sub {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every listener registered before the call, in registration order.
// A panicking listener is logged and does not stop the remaining listeners.
func (b *Bus) Publish() {
	b.mu.Lock()
	if b.closed || len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make([]*subscription, len(b.entries))
	copy(snapshot, b.entries)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		b.invoke(sub)
	}
}

func (b *Bus) invoke(sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusListenerPanics.Inc()
			b.log.Error("listener panicked", zap.Uint64("listener", sub.id), zap.Any("panic", r))
		}
	}()
	sub.fn()
}

// Len reports the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close drops every listener. Later Subscribe and Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.closed = true
	b.mu.Unlock()

	for _, sub := range entries {
		sub.active.Store(false)
	}
}
