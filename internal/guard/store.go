package guard

import (
	"context"
	"sync"
	"time"
)

// WindowStore persists per-key sliding-window request timestamps. The default
// backing is process-local memory; deployments with multiple instances can
// swap in the Redis store without touching guard semantics.
type WindowStore interface {
	// Count removes entries older than cutoff and reports the remaining
	// count together with the oldest surviving timestamp (zero when empty).
	Count(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error)
	// Append records one request timestamp under key. Entries may be
	// discarded after ttl; the guard never reads further back than a window.
	Append(ctx context.Context, key string, ts time.Time, ttl time.Duration) error
	// Clear drops all entries for key.
	Clear(ctx context.Context, key string) error
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemoryStore() WindowStore {
	return &memoryStore{entries: make(map[string][]time.Time)}
}

func (s *memoryStore) Count(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(s.entries, key)
		return 0, time.Time{}, nil
	}
	s.entries[key] = kept

	oldest := kept[0]
	for _, ts := range kept[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return len(kept), oldest, nil
}

func (s *memoryStore) Append(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append(s.entries[key], ts)
	return nil
}

func (s *memoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
