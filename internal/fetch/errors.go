package fetch

import (
	"errors"
	"fmt"
)

// ErrInvalidID indicates an item id that is not a base-10 unsigned 64-bit integer.
var ErrInvalidID = errors.New("fetch: invalid item id")

// FetchFailure reports a failed page request. It aborts the whole bulk fetch.
type FetchFailure struct {
	ResourceID string
	Request    PageRequest
	Err        error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch: page %s %q (limit %d) for %s: %v",
		e.Request.Mode, e.Request.Anchor, e.Request.Limit, e.ResourceID, e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }
