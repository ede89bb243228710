package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/solar-forecast/internal/domain/model"
)

// ObjectConfig points at an artifact in S3-compatible storage (MinIO, R2).
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Key       string
}

// ObjectLoader reads the artifact from object storage.
type ObjectLoader struct {
	client *minio.Client
	bucket string
	key    string
	logger *slog.Logger
}

// NewObjectLoader constructs the loader.
func NewObjectLoader(cfg ObjectConfig, logger *slog.Logger) (*ObjectLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "https"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage client: %w", err)
	}
	return &ObjectLoader{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		logger: logger.With("component", "modelstore.object"),
	}, nil
}

// Load implements Loader.
func (l *ObjectLoader) Load(ctx context.Context) (*model.Runtime, error) {
	obj, err := l.client.GetObject(ctx, l.bucket, l.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get model object: %w", err)
	}
	defer obj.Close()
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat model object %s/%s: %w", l.bucket, l.key, err)
	}
	if stat.Size > maxArtifactSize {
		return nil, fmt.Errorf("model object %s exceeds %d bytes", l.key, maxArtifactSize)
	}
	data, err := io.ReadAll(io.LimitReader(obj, maxArtifactSize))
	if err != nil {
		return nil, fmt.Errorf("read model object: %w", err)
	}
	rt, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", l.bucket, l.key, err)
	}
	l.logger.Info("model artifact loaded", "bucket", l.bucket, "key", l.key, "etag", stat.ETag, "size", stat.Size)
	return rt, nil
}

// Upload publishes a validated artifact under the configured key.
func (l *ObjectLoader) Upload(ctx context.Context, data []byte) error {
	if _, err := model.Decode(data); err != nil {
		return fmt.Errorf("refusing to upload invalid artifact: %w", err)
	}
	exists, err := l.client.BucketExists(ctx, l.bucket)
	if err != nil || !exists {
		if err := l.client.MakeBucket(ctx, l.bucket, minio.MakeBucketOptions{}); err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	info, err := l.client.PutObject(ctx, l.bucket, l.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
	})
	if err != nil {
		return fmt.Errorf("put model object: %w", err)
	}
	l.logger.Info("model artifact uploaded", "bucket", l.bucket, "key", l.key, "etag", info.ETag, "size", info.Size)
	return nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

var _ Loader = (*ObjectLoader)(nil)
