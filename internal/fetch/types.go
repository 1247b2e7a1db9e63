// Package fetch retrieves long, ordered runs of channel messages from an
// API that only serves bounded pages. It hides the page size and the three
// addressing modes (before, after, around) behind a single FetchMany call.
package fetch

import (
	"context"
	"time"
)

// PageSize is the largest page the backing API returns.
const PageSize = 100

// Item is one immutable message.
type Item struct {
	ID        string
	Author    string
	Timestamp time.Time
	Content   string
}

// Mode selects how a page is addressed relative to its anchor.
type Mode int

const (
	// Latest requests the newest items with no anchor.
	Latest Mode = iota
	Before
	After
	Around
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Before:
		return "before"
	case After:
		return "after"
	case Around:
		return "around"
	default:
		return "latest"
	}
}

// PageRequest is a single page query. Limit is at most PageSize.
type PageRequest struct {
	Limit  int
	Mode   Mode
	Anchor string
}

// Source serves bounded pages of items for a resource. Pages need not be
// ordered; the engine reorders everything it returns.
type Source interface {
	FetchPage(ctx context.Context, resourceID string, req PageRequest) ([]Item, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, resourceID string, req PageRequest) ([]Item, error)

// FetchPage implements Source.
func (f SourceFunc) FetchPage(ctx context.Context, resourceID string, req PageRequest) ([]Item, error) {
	return f(ctx, resourceID, req)
}

// Constraints bound a bulk fetch. At most one of Before, After and Around
// is honored; Around wins, then After, then Before.
type Constraints struct {
	Limit  int
	Before string
	After  string
	Around string
}

// cursor is the walk state of one bulk fetch.
type cursor struct {
	mode      Mode
	anchor    string
	remaining int
}

func (c Constraints) cursor() cursor {
	switch {
	case c.Around != "":
		return cursor{mode: Around, anchor: c.Around, remaining: c.Limit}
	case c.After != "":
		return cursor{mode: After, anchor: c.After, remaining: c.Limit}
	case c.Before != "":
		return cursor{mode: Before, anchor: c.Before, remaining: c.Limit}
	default:
		return cursor{mode: Latest, remaining: c.Limit}
	}
}
