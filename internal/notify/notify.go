// Package notify announces published objects to downstream consumers.
package notify

import (
	"context"
	"time"
)

// Notifier delivers one payload to a topic and returns the message ID.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ObjectPublished is the payload sent after an object is uploaded.
type ObjectPublished struct {
	RunID       string    `json:"run_id"`
	Dataset     string    `json:"dataset"`
	Year        string    `json:"year"`
	Geography   string    `json:"geography"`
	Origin      string    `json:"origin"`
	State       string    `json:"state"`
	Key         string    `json:"key"`
	URI         string    `json:"uri"`
	MD5         string    `json:"md5"`
	PublishedAt time.Time `json:"published_at"`
}
