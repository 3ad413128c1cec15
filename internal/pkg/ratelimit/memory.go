package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

type clocker interface {
	Now() time.Time
}

type memoryEntry struct {
	count     atomic.Int64
	windowEnd time.Time
}

// MemoryStore is a process-local Store. Counter bumps inside an open window
// take only a read lock on the map; the write lock is needed just to open a
// new window.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clocker
	entries map[string]*memoryEntry
}

// NewMemoryStore builds an in-memory Store using the given time source.
func NewMemoryStore(clock clocker) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]*memoryEntry),
	}
}

// Incr adds one attempt for key and returns the count in the current window.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.clock.Now()

	s.mu.RLock()
	entry, ok := s.entries[key]
	if ok && now.Before(entry.windowEnd) {
		n := entry.count.Inc()
		s.mu.RUnlock()
		return n, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: another goroutine may have opened the window meanwhile.
	entry, ok = s.entries[key]
	if ok && now.Before(entry.windowEnd) {
		return entry.count.Inc(), nil
	}

	entry = &memoryEntry{windowEnd: now.Add(window)}
	entry.count.Store(1)
	s.entries[key] = entry

	return 1, nil
}

// Count returns the count in the current window, zero when elapsed or absent.
func (s *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || !s.clock.Now().Before(entry.windowEnd) {
		return 0, nil
	}

	return entry.count.Load(), nil
}

// TTL returns the remaining window duration for key, zero when none is active.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return 0, nil
	}

	remaining := entry.windowEnd.Sub(s.clock.Now())
	if remaining < 0 {
		return 0, nil
	}

	return remaining, nil
}

// Reset removes the counter for key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}
