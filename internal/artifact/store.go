// Package artifact implements ArtifactStore (spec.md §4.7): object storage
// for screenshot/PDF bytes, backed by an S3-compatible bucket. Grounded on
// dreamingfree09-secure-file-drop's minio-go/v7 wiring (newMinioClient,
// PutObject/RemoveObject usage) named in its server.go.
package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/weblinq/gateway/internal/config"
)

// Store wraps a minio.Client bound to one bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New constructs a Store from cfg's S3 settings. A zero-value Endpoint
// disables persistence entirely: useractor.Manager treats that as "store
// unavailable" and degrades to the resilience behavior spec.md §4.6 names.
func New(cfg *config.Config) (*Store, error) {
	if cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("artifact store: S3_ENDPOINT not configured")
	}

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{client: client, bucket: cfg.S3Bucket}, nil
}

// Put uploads data under objectKey with the given content type, creating
// the bucket on first use.
func (s *Store) Put(ctx context.Context, objectKey string, data []byte, contentType string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}

	reader := bytes.NewReader(data)
	_, err = s.client.PutObject(ctx, s.bucket, objectKey, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Delete removes objectKey from the bucket.
func (s *Store) Delete(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
