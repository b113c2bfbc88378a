package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ObjectStore wraps the documents bucket with the byte-level operations the
// pipeline needs. Keys come from the paths package.
type ObjectStore struct {
	client *storage.Client
	bucket string
}

// NewObjectStore creates an ObjectStore over the given bucket.
func NewObjectStore(ctx context.Context, bucket string) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create an object store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &ObjectStore{client: client, bucket: bucket}, nil
}

// Download reads an object's full contents.
func (s *ObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s for reading: %w", s.bucket, key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// Upload writes an object, retrying transient failures with exponential
// backoff.
func (s *ObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			writer := s.client.Bucket(s.bucket).Object(key).NewWriter(writeCtx)
			if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
				_ = writer.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := writer.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

// UploadIfAbsent writes an object only if it does not already exist. A
// precondition failure is a clean no-op, which keeps retried runs idempotent.
func (s *ObjectStore) UploadIfAbsent(ctx context.Context, key string, data []byte) error {
	writer := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "gcsObject", key)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "gcsObject", key)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Copy performs a server-side copy from src to dst within the bucket.
func (s *ObjectStore) Copy(ctx context.Context, src, dst string) error {
	bkt := s.client.Bucket(s.bucket)
	if _, err := bkt.Object(dst).CopierFrom(bkt.Object(src)).Run(ctx); err != nil {
		return fmt.Errorf("failed to copy gs://%s/%s to %s: %w", s.bucket, src, dst, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
