package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	id      string
	expires time.Time
}

// memoryStore is a development-only in-memory idempotency store.
// State is lost on restart and is not shared across instances.
type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]memoryEntry
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, keys: make(map[string]memoryEntry)}
}

func (s *memoryStore) Claim(_ context.Context, key, candidateID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.expires) {
		return e.id, nil
	}
	s.keys[key] = memoryEntry{id: candidateID, expires: now.Add(s.ttl)}
	return candidateID, nil
}

func (s *memoryStore) Close() error { return nil }
