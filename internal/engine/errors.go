package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/itemupdate/internal/ir"
)

// ItemError is the failure of one item directory. It never aborts the
// batch; the orchestrator records it on the ItemResult and moves on.
type ItemError struct {
	// Dir is the item directory name.
	Dir string

	// Stage is where processing stopped: "begin", "load", an action kind,
	// "touch", "undo" or "commit".
	Stage string

	Err error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %s: %v", e.Dir, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Kind returns the ir.ErrorKind of the underlying error, or "" when the
// failure did not come from a classified error.
func (e *ItemError) Kind() ir.ErrorKind {
	return ir.KindOf(e.Err)
}

// IsItemError reports whether err is (or wraps) an ItemError.
func IsItemError(err error) bool {
	var ie *ItemError
	return errors.As(err, &ie)
}

func newItemError(dir, stage string, err error) *ItemError {
	return &ItemError{Dir: dir, Stage: stage, Err: err}
}
