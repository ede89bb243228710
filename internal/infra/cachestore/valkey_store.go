package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
)

// ValkeyStore persists cache entries in a Valkey-compatible database.
// Keys expire after retention, so no sweeping is required.
type ValkeyStore struct {
	client    valkey.Client
	prefix    string
	retention time.Duration
}

// NewValkeyStore constructs a new store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string, retention time.Duration) *ValkeyStore {
	if prefix == "" {
		prefix = "solar"
	}
	return &ValkeyStore{client: client, prefix: prefix, retention: retention}
}

// Read implements cache.Store.
func (s *ValkeyStore) Read(ctx context.Context, name, key string) (cache.Entry, bool, error) {
	cmd := s.client.B().Get().Key(s.entryKey(name, key)).Build()
	payload, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, err
	}
	var entry cache.Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return cache.Entry{}, false, err
	}
	return entry, true, nil
}

// Write implements cache.Store.
func (s *ValkeyStore) Write(ctx context.Context, entry cache.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	builder := s.client.B().Set().Key(s.entryKey(entry.Cache, entry.Key)).Value(string(payload))
	var cmd valkey.Completed
	if ttl := s.retention; ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) entryKey(name, key string) string {
	return fmt.Sprintf("%s:cache:%s:%s", s.prefix, name, key)
}

var _ cache.Store = (*ValkeyStore)(nil)
