package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yanqian/solar-forecast/pkg/metrics"
)

// EntryVersion tags persisted cache envelopes.
const EntryVersion = 1

// DefaultTTL is the freshness window shared by the weather and result caches.
const DefaultTTL = 10 * time.Minute

// Cache names used for metrics, logs and store namespacing.
const (
	NameWeather = "weather"
	NameResult  = "result"
)

// Entry is the stored envelope around a cached payload.
type Entry struct {
	Version   int             `json:"version"`
	Key       string          `json:"key"`
	Cache     string          `json:"cache"`
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Store persists cache entries. Read reports false when the key is absent.
type Store interface {
	Read(ctx context.Context, cache, key string) (Entry, bool, error)
	Write(ctx context.Context, entry Entry) error
}

// Sweeper is implemented by stores that need explicit eviction.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// Hit is a decoded cache read.
type Hit struct {
	Key       string
	WrittenAt time.Time
	Age       time.Duration
}

// Cache is a TTL view over a Store for one named cache.
type Cache struct {
	name    string
	ttl     time.Duration
	store   Store
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a named cache. A non-positive ttl falls back to DefaultTTL.
func New(name string, ttl time.Duration, store Store, recorder *metrics.Recorder, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		name:    name,
		ttl:     ttl,
		store:   store,
		metrics: recorder,
		logger:  logger.With("component", "cache."+name),
		now:     time.Now,
	}
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get decodes a fresh entry into out. Entries older than the TTL are reported as misses.
func (c *Cache) Get(ctx context.Context, key string, out any) (Hit, bool) {
	hit, ok := c.read(ctx, key, out, false)
	if ok {
		c.metrics.CacheHit(c.name)
	} else {
		c.metrics.CacheMiss(c.name)
	}
	return hit, ok
}

// GetStale decodes an entry regardless of age.
func (c *Cache) GetStale(ctx context.Context, key string, out any) (Hit, bool) {
	hit, ok := c.read(ctx, key, out, true)
	if ok {
		c.metrics.CacheStale(c.name)
	}
	return hit, ok
}

// Put overwrites the entry for key.
func (c *Cache) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s cache payload: %w", c.name, err)
	}
	entry := Entry{
		Version:   EntryVersion,
		Key:       key,
		Cache:     c.name,
		WrittenAt: c.now().UTC(),
		Payload:   payload,
	}
	if err := c.store.Write(ctx, entry); err != nil {
		return fmt.Errorf("write %s cache: %w", c.name, err)
	}
	return nil
}

func (c *Cache) read(ctx context.Context, key string, out any, allowStale bool) (Hit, bool) {
	entry, ok, err := c.store.Read(ctx, c.name, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return Hit{}, false
	}
	if !ok {
		return Hit{}, false
	}
	if entry.Version != EntryVersion {
		c.logger.Warn("cache entry version mismatch", "key", key, "version", entry.Version)
		return Hit{}, false
	}
	age := c.now().Sub(entry.WrittenAt)
	if !allowStale && age > c.ttl {
		return Hit{}, false
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		c.logger.Warn("cache payload decode failed", "key", key, "error", err)
		return Hit{}, false
	}
	return Hit{Key: key, WrittenAt: entry.WrittenAt, Age: age}, true
}
