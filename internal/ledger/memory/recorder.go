// Package memory keeps ledger entries in memory for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/census-pipeline/internal/ledger"
)

// Recorder stores entries in insertion order.
type Recorder struct {
	mu      sync.RWMutex
	entries []ledger.Entry
}

// NewRecorder constructs a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends e.
func (r *Recorder) Record(_ context.Context, e ledger.Entry) error {
	if e.Key == "" {
		return errors.New("entry key is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []ledger.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ledger.Entry(nil), r.entries...)
}

// Close is a no-op.
func (r *Recorder) Close() {}
