// Package reset owns the reset schedule of every managed channel: it arms a
// timer per pending task, sweeps overdue tasks periodically, and runs the
// archive, recreate and re-register cycle when a deadline passes.
package reset

import (
	"context"
	"errors"

	"github.com/flemzord/chanreset/internal/archive"
	"github.com/flemzord/chanreset/internal/fetch"
)

// ErrResourceNotFound is reported by a ResourceClient when the resource no
// longer exists. A reset of a vanished resource retires its task.
var ErrResourceNotFound = errors.New("reset: resource not found")

// Resource describes a managed resource at reset time.
type Resource struct {
	ID        string
	GroupID   string
	Name      string
	GroupName string
}

// ResourceClient is the resource management capability of the chat platform.
type ResourceClient interface {
	fetch.Source

	Describe(ctx context.Context, resourceID string) (Resource, error)
	GetPosition(ctx context.Context, resourceID string) (int, error)
	SetPosition(ctx context.Context, resourceID string, position int) error
	// CloneResource creates a copy of the resource and returns its id.
	CloneResource(ctx context.Context, resourceID string) (string, error)
	DeleteResource(ctx context.Context, resourceID string) error
}

// Archiver exports a resource's history before it is destroyed.
type Archiver interface {
	Archive(ctx context.Context, groupID, resourceID string, meta archive.Metadata) (archive.Result, error)
}
