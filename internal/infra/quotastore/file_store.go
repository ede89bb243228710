package quotastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yanqian/solar-forecast/internal/domain/quota"
)

// FileStore persists the call log as a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore builds a store writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("call log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create call log dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements quota.Store.
func (s *FileStore) Load(_ context.Context) (quota.CallLog, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return quota.CallLog{}, false, nil
	}
	if err != nil {
		return quota.CallLog{}, false, fmt.Errorf("read call log: %w", err)
	}
	var log quota.CallLog
	if err := json.Unmarshal(data, &log); err != nil {
		return quota.CallLog{}, false, fmt.Errorf("decode call log: %w", err)
	}
	return log, true, nil
}

// Save implements quota.Store. The document is replaced atomically.
func (s *FileStore) Save(_ context.Context, log quota.CallLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode call log: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".calllog-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write call log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync call log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close call log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace call log: %w", err)
	}
	return nil
}

var _ quota.Store = (*FileStore)(nil)
