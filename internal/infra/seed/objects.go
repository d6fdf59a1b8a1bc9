package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig points at an S3-compatible endpoint (S3, R2, MinIO).
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// MinioObjects reads seed objects through minio-go.
type MinioObjects struct {
	client *minio.Client
}

// NewMinioObjects constructs the object reader.
func NewMinioObjects(cfg ObjectConfig) (*MinioObjects, error) {
	cleanEndpoint := sanitizeEndpoint(cfg.Endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("object storage endpoint cannot be empty")
	}
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cfg.Endpoint)), "http://"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage client: %w", err)
	}
	return &MinioObjects{client: client}, nil
}

// Open fetches an object for reading.
func (o *MinioObjects) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing object before the caller starts decoding.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}
