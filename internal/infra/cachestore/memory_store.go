package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
)

// MemoryStore keeps cache entries in process memory for tests/dev.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]cache.Entry)}
}

// Read implements cache.Store.
func (s *MemoryStore) Read(_ context.Context, name, key string) (cache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[name+"/"+key]
	return entry, ok, nil
}

// Write implements cache.Store.
func (s *MemoryStore) Write(_ context.Context, entry cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Cache+"/"+entry.Key] = entry
	return nil
}

// Sweep drops entries written before olderThan.
func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.WrittenAt.Before(olderThan) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

var (
	_ cache.Store   = (*MemoryStore)(nil)
	_ cache.Sweeper = (*MemoryStore)(nil)
)
