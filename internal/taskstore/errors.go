package taskstore

import (
	"errors"
	"fmt"
)

// ErrInvalidTask indicates an empty group or resource id.
var ErrInvalidTask = errors.New("taskstore: group and resource ids are required")

// CorruptStateError reports persisted bytes that do not decode. Whether to
// abort or start empty is the caller's decision.
type CorruptStateError struct {
	Err error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("taskstore: corrupt persisted state: %v", e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// PersistenceFailure reports a failed write. The mutation that triggered it
// was not committed.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("taskstore: persist after %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
