// Package ledger records every publish decision so runs can be audited.
package ledger

import (
	"context"
	"time"
)

// Actions recorded for one object.
const (
	ActionUploaded = "uploaded"
	ActionSkipped  = "skipped"
	ActionAbsent   = "absent"
)

// Entry is one publish decision.
type Entry struct {
	RunID      string
	Dataset    string
	Key        string
	MD5        string
	Action     string
	URI        string
	RecordedAt time.Time
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Close()
}
