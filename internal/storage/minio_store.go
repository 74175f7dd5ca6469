// Package storage adapts the MinIO client to the collector's object
// layout and storage path addressing.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	pkgminio "github.com/klangscribe/collector/internal/pkg/minio"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"go.uber.org/zap"
)

// Config holds the storage layout settings.
type Config struct {
	// Bucket is the object storage bucket everything is written to.
	Bucket string `mapstructure:"bucket"`
	// RoutingID is the UUID segment in the s3://uns/ address prefix.
	// Generated per process when empty.
	RoutingID string `mapstructure:"routing_id"`
}

// DefaultConfig returns a config with the standard bucket.
func DefaultConfig() *Config {
	return &Config{
		Bucket: "data-collection",
	}
}

// MinIOStore uploads files and artifacts to one bucket and reports
// storage paths in the uns addressing scheme:
//
//	s3://uns/<routing-uuid><bucket>/<object key>
//
// Note there is no separator between the routing id and the bucket;
// downstream consumers strip the s3://uns/<uuid> prefix to recover the
// bucket-relative location.
type MinIOStore struct {
	client        *pkgminio.Client
	bucket        string
	addressPrefix string
	logger        *logger.Logger
}

// NewMinIOStore creates a store writing to cfg.Bucket.
func NewMinIOStore(client *pkgminio.Client, cfg *Config, log *logger.Logger) (*MinIOStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	routingID := cfg.RoutingID
	if routingID == "" {
		routingID = uuid.NewString()
	}
	if log == nil {
		log = logger.L()
	}

	return &MinIOStore{
		client:        client,
		bucket:        cfg.Bucket,
		addressPrefix: "s3://uns/" + routingID,
		logger:        log,
	}, nil
}

// Bucket returns the bucket the store writes to.
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	return s.client.EnsureBucket(ctx, s.bucket)
}

// UploadFile uploads a local file under objectKey and returns its
// storage path in the uns addressing scheme.
func (s *MinIOStore) UploadFile(ctx context.Context, objectKey, filePath string) (string, error) {
	if err := s.client.EnsureBucket(ctx, s.bucket); err != nil {
		return "", err
	}

	info, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, pkgminio.PutObjectOptions{})
	if err != nil {
		return "", err
	}

	s.logger.Debug("uploaded file to object storage",
		zap.String("bucket", s.bucket),
		zap.String("key", objectKey),
		zap.Int64("size", info.Size),
	)

	return s.addressPrefix + s.bucket + "/" + objectKey, nil
}

// PutBytes writes an in-memory artifact under objectKey.
func (s *MinIOStore) PutBytes(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if err := s.client.EnsureBucket(ctx, s.bucket); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), pkgminio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
