package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/pulsefeed/npcmind/pkg/config"
	"github.com/pulsefeed/npcmind/pkg/logging"
)

// Uploader stores an object and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// GCSUploader uploads objects to a Google Cloud Storage bucket
type GCSUploader struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

// NewGCSUploader creates an uploader for the configured bucket
func NewGCSUploader(ctx context.Context, cfg *config.StorageConfig, opts ...option.ClientOption) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage_bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	logger := logging.GetLogger().With(zap.String("component", "gcs-uploader"))
	logger.Info("Object storage client initialized", zap.String("bucket", cfg.Bucket))

	return &GCSUploader{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Upload writes data to the bucket under key and returns the object's URL
func (u *GCSUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close object writer for %s: %w", key, err)
	}

	u.logger.Debug("Uploaded object", zap.String("key", key), zap.Int("bytes", len(data)))

	return u.publicURL(key), nil
}

// Close releases the underlying storage client
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func (u *GCSUploader) publicURL(key string) string {
	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, key)
}
