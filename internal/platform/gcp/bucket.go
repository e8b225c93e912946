package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/incuisenix/backend/internal/pkg/ctxutil"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Bucket stages extracted media in GCS so the long-running annotation
// APIs can read it by URI. Objects are transient; callers delete them
// once ingestion finishes.
type Bucket interface {
	Upload(ctx context.Context, objectName string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	Close() error
}

type bucketService struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewBucket(log *logger.Logger) (Bucket, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := envutil.String("GCS_STAGING_BUCKET", "")
	if name == "" {
		return nil, fmt.Errorf("missing GCS_STAGING_BUCKET")
	}

	c, err := storage.NewClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &bucketService{
		log:    log.With("service", "gcp.Bucket"),
		client: c,
		bucket: name,
		prefix: strings.Trim(envutil.String("GCS_STAGING_PREFIX", "ingest"), "/"),
	}, nil
}

func (s *bucketService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *bucketService) objectPath(objectName string) string {
	objectName = strings.TrimLeft(strings.TrimSpace(objectName), "/")
	if s.prefix == "" {
		return objectName
	}
	return s.prefix + "/" + objectName
}

func (s *bucketService) Upload(ctx context.Context, objectName string, r io.Reader, contentType string) (string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	path := s.objectPath(objectName)
	if path == "" {
		return "", fmt.Errorf("missing object name")
	}

	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload close %s: %w", path, err)
	}

	uri := "gs://" + s.bucket + "/" + path
	s.log.Debug("Staged object", "uri", uri)
	return uri, nil
}

func (s *bucketService) Delete(ctx context.Context, objectName string) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	path := s.objectPath(objectName)
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("gcs delete %s: %w", path, err)
	}
	return nil
}
