// Package taskstore persists the pending reset tasks of every managed
// channel. Each task pairs an owner group and a resource with an absolute
// deadline, so deadlines survive restarts without drift.
package taskstore

import (
	"context"
	"time"
)

// Task is one pending reset. At most one Task exists per (GroupID, ResourceID).
type Task struct {
	GroupID    string
	ResourceID string
	Deadline   time.Time
}

// Key identifies a task.
type Key struct {
	GroupID    string
	ResourceID string
}

// Key returns the identity of t.
func (t Task) Key() Key {
	return Key{GroupID: t.GroupID, ResourceID: t.ResourceID}
}

// PersistentStore holds the encoded store as a single blob. ReadAll returns
// (nil, nil) when nothing has been written yet. WriteAll must replace the
// previous blob atomically from a reader's point of view.
type PersistentStore interface {
	ReadAll(ctx context.Context) ([]byte, error)
	WriteAll(ctx context.Context, data []byte) error
}
