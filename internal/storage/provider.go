// Package storage defines the object-store abstraction used for publishing.
// Implementations live in subpackages (s3, gcs, local, memory) so the
// publisher stays independent of any one backend.
package storage

import (
	"context"
	"errors"
	"strings"
)

// Status is the outcome of comparing a remote object with local content.
type Status int

const (
	// Missing means no object exists at the key.
	Missing Status = iota
	// Match means the object exists and its content hash equals the local one.
	Match
	// Differs means the object exists with different content.
	Differs
)

func (s Status) String() string {
	switch s {
	case Missing:
		return "missing"
	case Match:
		return "match"
	case Differs:
		return "differs"
	default:
		return "unknown"
	}
}

// ErrEmptyKey is returned for blank object keys.
var ErrEmptyKey = errors.New("object key is required")

// Store is an object store that supports hash-conditional uploads.
type Store interface {
	// Head compares the object at key with the hex MD5 digest.
	Head(ctx context.Context, key, md5Hex string) (Status, error)
	// Put uploads data to key and returns the object URI. md5Hex lets the
	// backend verify the upload where it supports that.
	Put(ctx context.Context, key string, data []byte, md5Hex string) (string, error)
}

// ContentType guesses a content type from an object key's extension.
func ContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(key, ".geojson"):
		return "application/geo+json"
	case strings.HasSuffix(key, ".zip"):
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
