package quotastore

import (
	"context"
	"sync"

	"github.com/yanqian/solar-forecast/internal/domain/quota"
)

// MemoryStore keeps the call log in process memory for tests/dev.
type MemoryStore struct {
	mu  sync.Mutex
	log quota.CallLog
	ok  bool
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements quota.Store.
func (s *MemoryStore) Load(_ context.Context) (quota.CallLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLog(s.log), s.ok, nil
}

// Save implements quota.Store.
func (s *MemoryStore) Save(_ context.Context, log quota.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = cloneLog(log)
	s.ok = true
	return nil
}

func cloneLog(log quota.CallLog) quota.CallLog {
	log.History = append([]quota.CallRecord(nil), log.History...)
	return log
}

var _ quota.Store = (*MemoryStore)(nil)
