package cachestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
)

func entry(name, key string, written time.Time) cache.Entry {
	return cache.Entry{
		Version:   cache.EntryVersion,
		Key:       key,
		Cache:     name,
		WrittenAt: written,
		Payload:   json.RawMessage(`{"total_kwh":12.5}`),
	}
}

func TestFileStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Read(ctx, cache.NameResult, "abc")
	require.NoError(t, err)
	require.False(t, ok)

	written := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(ctx, entry(cache.NameResult, "abc", written)))

	got, ok, err := store.Read(ctx, cache.NameResult, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, written, got.WrittenAt)
	require.JSONEq(t, `{"total_kwh":12.5}`, string(got.Payload))

	// same key in another cache is independent
	_, ok, err = store.Read(ctx, cache.NameWeather, "abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.Error(t, store.Write(context.Background(), entry(cache.NameResult, "../escape", time.Now())))
}

func TestFileStoreSweep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(ctx, entry(cache.NameWeather, "old", now.Add(-25*time.Hour))))
	require.NoError(t, store.Write(ctx, entry(cache.NameWeather, "new", now.Add(-time.Hour))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cache.NameResult+".txt"), []byte("ignored"), 0o644))

	removed, err := store.Sweep(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, ok, err := store.Read(ctx, cache.NameWeather, "old")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Read(ctx, cache.NameWeather, "new")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	require.NoError(t, store.Write(ctx, entry(cache.NameResult, "a", now.Add(-48*time.Hour))))
	require.NoError(t, store.Write(ctx, entry(cache.NameResult, "b", now)))

	removed, err := store.Sweep(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, ok, _ := store.Read(ctx, cache.NameResult, "b")
	require.True(t, ok)
}

func TestFileStoreSweepRemovesAbandonedTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	now := time.Now()
	weatherDir := filepath.Join(dir, cache.NameWeather)
	require.NoError(t, os.MkdirAll(weatherDir, 0o755))

	abandoned := filepath.Join(weatherDir, tempPrefix+"123")
	require.NoError(t, os.WriteFile(abandoned, []byte(`{"version":1,`), 0o644))
	require.NoError(t, os.Chtimes(abandoned, now.Add(-25*time.Hour), now.Add(-25*time.Hour)))

	inFlight := filepath.Join(weatherDir, tempPrefix+"456")
	require.NoError(t, os.WriteFile(inFlight, []byte(`{"version":1,`), 0o644))

	removed, err := store.Sweep(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(abandoned)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(inFlight)
	require.NoError(t, err)
}
