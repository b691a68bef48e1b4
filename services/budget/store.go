package budget

import (
	"context"
	"sync"
	"time"
)

// Store persists spend counters. Keys are period-scoped so rollover is a
// matter of addressing a fresh key rather than mutating an old one.
type Store interface {
	// Add atomically increments the counter and returns the new total.
	Add(ctx context.Context, key string, amount float64) (float64, error)
	// Get returns the current counter value, zero if the key is absent.
	Get(ctx context.Context, key string) (float64, error)
	// Set overwrites the counter, optionally expiring it after ttl (0 = keep).
	Set(ctx context.Context, key string, value float64, ttl time.Duration) error
}

// MemoryStore is the single-instance default store. Deployments that run
// more than one gateway replica should use the Redis store so counters
// are shared.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]float64)}
}

func (s *MemoryStore) Add(_ context.Context, key string, amount float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += amount
	return s.counters[key], nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value float64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = value
	return nil
}
