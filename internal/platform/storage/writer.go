package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
)

// Writer uploads generated objects such as CSV exports.
type Writer struct {
	client *gcs.Client
}

// NewWriter wraps a Cloud Storage client.
func NewWriter(client *gcs.Client) (*Writer, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &Writer{client: client}, nil
}

// Write stores data at bucket/object. The object must not already exist.
func (w *Writer) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if bucket == "" || object == "" {
		return ErrMissingLocation
	}
	obj := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	ow := obj.NewWriter(ctx)
	ow.ContentType = contentType
	ow.CacheControl = "private, max-age=0"
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return fmt.Errorf("storage: write %s/%s: %w", bucket, object, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Ping checks that bucket is reachable with the current credentials.
func (w *Writer) Ping(ctx context.Context, bucket string) error {
	if bucket == "" {
		return nil
	}
	if _, err := w.client.Bucket(bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: bucket %s: %w", bucket, err)
	}
	return nil
}
