package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a process-local Store, for single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter), now: time.Now}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		s.sweep(now)
		c = &counter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// sweep drops expired counters. Callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
