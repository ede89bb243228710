package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
)

// tempPrefix names in-flight writes. A crash between create and rename leaves one behind.
const tempPrefix = ".tmp-"

// FileStore keeps one JSON document per entry under dir/<cache>/<key>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Read implements cache.Store.
func (s *FileStore) Read(_ context.Context, name, key string) (cache.Entry, bool, error) {
	path, err := s.path(name, key)
	if err != nil {
		return cache.Entry{}, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cache entry %s: %w", filepath.Base(path), err)
	}
	return entry, true, nil
}

// Write implements cache.Store. Entries are replaced atomically.
func (s *FileStore) Write(_ context.Context, entry cache.Entry) error {
	path, err := s.path(entry.Cache, entry.Key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return writeFileAtomic(path, data)
}

// Sweep removes entries written before olderThan. Unreadable files fall back to their mtime. Temp files
// abandoned by an interrupted write are removed by mtime against the same cutoff.
func (s *FileStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		var written time.Time
		switch {
		case strings.HasPrefix(d.Name(), tempPrefix):
			info, err := d.Info()
			if errors.Is(err, fs.ErrNotExist) {
				// renamed or cleaned up by its writer meanwhile
				return nil
			}
			if err != nil {
				return fmt.Errorf("stat temp file: %w", err)
			}
			written = info.ModTime()
		case filepath.Ext(path) == ".json":
			written, err = entryTime(path, d)
			if err != nil {
				return err
			}
		default:
			return nil
		}
		if !written.Before(olderThan) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove cache entry: %w", err)
		}
		removed++
		return nil
	})
	return removed, err
}

func (s *FileStore) path(name, key string) (string, error) {
	if !validSegment(name) || !validSegment(key) {
		return "", fmt.Errorf("invalid cache key %q/%q", name, key)
	}
	return filepath.Join(s.dir, name, key+".json"), nil
}

func entryTime(path string, d fs.DirEntry) (time.Time, error) {
	if data, err := os.ReadFile(path); err == nil {
		var entry cache.Entry
		if json.Unmarshal(data, &entry) == nil && !entry.WrittenAt.IsZero() {
			return entry.WrittenAt, nil
		}
	}
	info, err := d.Info()
	if err != nil {
		return time.Time{}, fmt.Errorf("stat cache entry: %w", err)
	}
	return info.ModTime(), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

var (
	_ cache.Store   = (*FileStore)(nil)
	_ cache.Sweeper = (*FileStore)(nil)
)
