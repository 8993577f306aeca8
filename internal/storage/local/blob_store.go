// Package local implements a Store that mirrors published objects into a
// local directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/census-pipeline/internal/hash/md5"
	"github.com/JakeFAU/census-pipeline/internal/storage"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where objects will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes objects to the local filesystem.
type BlobStore struct {
	baseDir string
	hasher  *md5.Hasher
}

// New creates a local filesystem-backed store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	// Check if the directory exists and is writable.
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{
		baseDir: cfg.BaseDir,
		hasher:  md5.New(),
	}, nil
}

// Head hashes the mirrored file, if any, and compares it with md5Hex.
func (s *BlobStore) Head(_ context.Context, key, md5Hex string) (storage.Status, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return storage.Missing, err
	}
	//nolint:gosec // fullPath is confined to baseDir by resolve
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.Missing, nil
	}
	if err != nil {
		return storage.Missing, fmt.Errorf("failed to read object: %w", err)
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

// Put writes data to a file under the base directory and returns a file://
// URI.
func (s *BlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// resolve joins key onto the base directory and rejects path traversal.
func (s *BlobStore) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", storage.ErrEmptyKey
	}
	fullPath := filepath.Join(s.baseDir, key)
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
