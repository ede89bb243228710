package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/solar-forecast/pkg/metrics"
)

type mapStore struct {
	entries map[string]Entry
}

func (s *mapStore) Read(_ context.Context, cache, key string) (Entry, bool, error) {
	e, ok := s.entries[cache+"/"+key]
	return e, ok, nil
}

func (s *mapStore) Write(_ context.Context, e Entry) error {
	s.entries[e.Cache+"/"+e.Key] = e
	return nil
}

type payload struct {
	Total float64 `json:"total"`
}

func newTestCache(t *testing.T, now *time.Time) (*Cache, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	c := New(NameResult, 10*time.Minute, &mapStore{entries: map[string]Entry{}}, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return *now }
	return c, rec
}

func TestCacheTTLBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, rec := newTestCache(t, &now)

	require.NoError(t, c.Put(ctx, "k", payload{Total: 4.2}))

	now = now.Add(10 * time.Minute)
	var got payload
	hit, ok := c.Get(ctx, "k", &got)
	require.True(t, ok)
	require.Equal(t, 4.2, got.Total)
	require.Equal(t, 10*time.Minute, hit.Age)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, "k", &got)
	require.False(t, ok)

	var stale payload
	hit, ok = c.GetStale(ctx, "k", &stale)
	require.True(t, ok)
	require.Equal(t, 4.2, stale.Total)
	require.Equal(t, "k", hit.Key)

	require.Equal(t, metrics.CacheStats{Hits: 1, Misses: 1, Stale: 1}, rec.CacheSnapshot()[NameResult])
}

func TestCachePutOverwrites(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestCache(t, &now)

	require.NoError(t, c.Put(ctx, "k", payload{Total: 1}))
	now = now.Add(time.Minute)
	require.NoError(t, c.Put(ctx, "k", payload{Total: 2}))

	var got payload
	hit, ok := c.Get(ctx, "k", &got)
	require.True(t, ok)
	require.Equal(t, 2.0, got.Total)
	require.Equal(t, time.Duration(0), hit.Age)
}

func TestCacheMissingKey(t *testing.T) {
	now := time.Now()
	c, _ := newTestCache(t, &now)
	var got payload
	_, ok := c.GetStale(context.Background(), "absent", &got)
	require.False(t, ok)
}

func TestKeysAreStable(t *testing.T) {
	a := ResultKey("2024-06-01", "2024-06-02", 51.0447, -114.0719, true)
	require.Equal(t, a, ResultKey("2024-06-01", "2024-06-02", 51.0447, -114.0719, true))
	require.Len(t, a, 32)
	require.NotEqual(t, a, ResultKey("2024-06-01", "2024-06-02", 51.0447, -114.0719, false))
	require.NotEqual(t, a, ResultKey("2024-06-01", "2024-06-03", 51.0447, -114.0719, true))

	w := WeatherKey(51.0447, -114.0719, "2024-06-01", "2024-06-02")
	require.Equal(t, w, WeatherKey(51.0447, -114.0719, "2024-06-01", "2024-06-02"))
	require.NotEqual(t, w, WeatherKey(51.0, -114.0719, "2024-06-01", "2024-06-02"))
	// md5("51.0447_-114.0719_2024-06-01_2024-06-02") is fixed across processes.
	require.Equal(t, digest("51.0447_-114.0719_2024-06-01_2024-06-02"), w)
}
