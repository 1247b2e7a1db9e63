package reset

import "fmt"

// ResourceOperationFailure reports a failed call to the ResourceClient
// during a reset. The task stays pending and the next sweep retries it.
type ResourceOperationFailure struct {
	Op         string
	ResourceID string
	Err        error
}

func (e *ResourceOperationFailure) Error() string {
	return fmt.Sprintf("reset: %s %s: %v", e.Op, e.ResourceID, e.Err)
}

func (e *ResourceOperationFailure) Unwrap() error { return e.Err }
