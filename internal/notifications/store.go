package notifications

import (
	"context"
	"sync"
	"time"
)

// Store persists notification records.
//
// ListFor returns a recipient's records oldest first. MarkRead and MarkAllRead are
// idempotent: an unknown id or an already-read record is a no-op.
type Store interface {
	Record(ctx context.Context, input RecordInput) (Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	ListFor(ctx context.Context, recipient int64) ([]Record, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context, recipient int64) (int64, error)
	CountUnread(ctx context.Context, recipient int64) (int64, error)
	Prune(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// StoreOption customises a store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now             func() time.Time
	maxPerRecipient int
}

// WithStoreClock overrides the clock used to stamp records.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxPerRecipient caps the number of records kept per recipient on insert.
func WithMaxPerRecipient(n int) StoreOption {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxPerRecipient = n
		}
	}
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// sequencer hands out strictly increasing sequence numbers, so records created in
// the same clock tick still have a total order.
type sequencer struct {
	mu   sync.Mutex
	last int64
}

func (s *sequencer) next(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := now.UnixNano()
	if candidate <= s.last {
		candidate = s.last + 1
	}
	s.last = candidate
	return candidate
}
