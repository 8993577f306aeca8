package httpfetch

import (
	"fmt"
	"os"
)

// Scratch is a temporary directory owned by one run. Concurrent runs never
// share one.
type Scratch struct {
	dir string
}

// NewScratch creates a fresh temporary directory under parent (os.TempDir
// when empty).
func NewScratch(parent, prefix string) (*Scratch, error) {
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// Sub creates a fresh directory inside the scratch area for one key.
func (s *Scratch) Sub(prefix string) (string, error) {
	dir, err := os.MkdirTemp(s.dir, prefix)
	if err != nil {
		return "", fmt.Errorf("create scratch subdir: %w", err)
	}
	return dir, nil
}

// Close removes the directory and everything in it.
func (s *Scratch) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}
