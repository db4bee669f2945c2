package notifications

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps notifications in process memory.
type MemoryStore struct {
	opts storeOptions
	seq  sequencer

	mu          sync.RWMutex
	byID        map[string]*Record
	byRecipient map[int64][]*Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	return &MemoryStore{
		opts:        buildStoreOptions(opts),
		byID:        make(map[string]*Record),
		byRecipient: make(map[int64][]*Record),
	}
}

func (s *MemoryStore) Record(ctx context.Context, input RecordInput) (Record, error) {
	input, err := input.normalize()
	if err != nil {
		return Record{}, err
	}

	now := s.opts.now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Recipient: input.Recipient,
		Category:  input.Category,
		Title:     input.Title,
		Body:      input.Body,
		Payload:   input.Payload,
		CreatedAt: now,
		seq:       s.seq.next(now),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.byRecipient[rec.Recipient], rec)
	if limit := s.opts.maxPerRecipient; limit > 0 && len(list) > limit {
		for _, dropped := range list[:len(list)-limit] {
			delete(s.byID, dropped.ID)
		}
		list = append([]*Record(nil), list[len(list)-limit:]...)
	}
	s.byRecipient[rec.Recipient] = list
	s.byID[rec.ID] = rec

	return cloneRecord(rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemoryStore) ListFor(ctx context.Context, recipient int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byRecipient[recipient]
	out := make([]Record, 0, len(list))
	for _, rec := range list {
		out = append(out, cloneRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].seq < out[j].seq
	})
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || rec.Read {
		return false, nil
	}
	now := s.opts.now().UTC()
	rec.Read = true
	rec.ReadAt = &now
	return true, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipient int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now().UTC()
	var changed int64
	for _, rec := range s.byRecipient[recipient] {
		if rec.Read {
			continue
		}
		at := now
		rec.Read = true
		rec.ReadAt = &at
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, recipient int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var unread int64
	for _, rec := range s.byRecipient[recipient] {
		if !rec.Read {
			unread++
		}
	}
	return unread, nil
}

func (s *MemoryStore) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff, byAge := policy.cutoff(s.opts.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for recipient, list := range s.byRecipient {
		kept := make([]*Record, 0, len(list))
		for _, rec := range list {
			if byAge && rec.CreatedAt.Before(cutoff) {
				delete(s.byID, rec.ID)
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if limit := policy.MaxPerRecipient; limit > 0 && len(kept) > limit {
			for _, rec := range kept[:len(kept)-limit] {
				delete(s.byID, rec.ID)
				removed++
			}
			kept = kept[len(kept)-limit:]
		}
		if len(kept) == 0 {
			delete(s.byRecipient, recipient)
			continue
		}
		s.byRecipient[recipient] = kept
	}
	return removed, nil
}
