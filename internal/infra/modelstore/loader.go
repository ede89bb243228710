package modelstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yanqian/solar-forecast/internal/domain/model"
)

// maxArtifactSize caps how much of an artifact is read.
const maxArtifactSize = 64 << 20

// Loader fetches and decodes the model artifact once at startup.
type Loader interface {
	Load(ctx context.Context) (*model.Runtime, error)
}

// FileLoader reads the artifact from local disk.
type FileLoader struct {
	path string
}

// NewFileLoader builds a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: strings.TrimSpace(path)}
}

// Load implements Loader.
func (l *FileLoader) Load(_ context.Context) (*model.Runtime, error) {
	if l.path == "" {
		return nil, errors.New("model path not configured")
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat model artifact: %w", err)
	}
	if info.Size() > maxArtifactSize {
		return nil, fmt.Errorf("model artifact %s exceeds %d bytes", l.path, maxArtifactSize)
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	rt, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.path, err)
	}
	return rt, nil
}

var _ Loader = (*FileLoader)(nil)
