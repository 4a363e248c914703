package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("object not found")

// Storage keeps exported documents such as voucher batches.
type Storage interface {
	// Put stores body under key and returns where it can be fetched from.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by New.
const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendR2    = "r2"
)

type Config struct {
	Backend string

	LocalPath string
	LocalURL  string

	S3Endpoint  string // empty for AWS; set for MinIO
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string
}

// New builds the configured backend. BackendNone returns nil, nil.
func New(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	case BackendS3:
		return NewS3Storage(S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3Endpoint != "",
		})
	case BackendR2:
		return NewS3Storage(S3Options{
			Endpoint:  fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID),
			Region:    "auto",
			Bucket:    cfg.R2BucketName,
			AccessKey: cfg.R2AccessKeyID,
			SecretKey: cfg.R2AccessKeySecret,
			PublicURL: cfg.R2PublicURL,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
