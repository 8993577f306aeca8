// Package memory keeps published objects in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/census-pipeline/internal/hash/md5"
	"github.com/JakeFAU/census-pipeline/internal/storage"
)

// BlobStore stores objects in memory and returns pseudo URIs.
type BlobStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	hasher *md5.Hasher
}

// NewBlobStore creates a new in-memory store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:   make(map[string][]byte),
		hasher: md5.New(),
	}
}

// Head compares the stored object's digest with md5Hex.
func (s *BlobStore) Head(_ context.Context, key, md5Hex string) (storage.Status, error) {
	if strings.TrimSpace(key) == "" {
		return storage.Missing, storage.ErrEmptyKey
	}
	s.mu.RLock()
	data, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return storage.Missing, nil
	}
	sum, err := s.hasher.Hash(data)
	if err != nil {
		return storage.Missing, err
	}
	if strings.EqualFold(sum, md5Hex) {
		return storage.Match, nil
	}
	return storage.Differs, nil
}

// Put persists a copy of data and returns a URI.
func (s *BlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", storage.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Object returns a copy of the stored object.
func (s *BlobStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys returns the stored keys.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
