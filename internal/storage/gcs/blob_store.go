// Package gcs provides a Store backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	pipestorage "github.com/JakeFAU/census-pipeline/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore publishes objects to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Head compares the object's stored MD5 with md5Hex. Composite objects carry
// no MD5 and always report Differs.
func (s *BlobStore) Head(ctx context.Context, key, md5Hex string) (pipestorage.Status, error) {
	if strings.TrimSpace(key) == "" {
		return pipestorage.Missing, pipestorage.ErrEmptyKey
	}
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return pipestorage.Missing, nil
	}
	if err != nil {
		return pipestorage.Missing, fmt.Errorf("stat gs://%s/%s: %w", s.bucket, key, err)
	}
	if len(attrs.MD5) > 0 && hex.EncodeToString(attrs.MD5) == strings.ToLower(md5Hex) {
		return pipestorage.Match, nil
	}
	return pipestorage.Differs, nil
}

// Put uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, md5Hex string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", pipestorage.ErrEmptyKey
	}
	var sum []byte
	if md5Hex != "" {
		decoded, err := hex.DecodeString(md5Hex)
		if err != nil {
			return "", fmt.Errorf("decode md5 %q: %w", md5Hex, err)
		}
		sum = decoded
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = pipestorage.ContentType(key)
	// The service rejects the upload when the body does not hash to MD5.
	writer.MD5 = sum
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
