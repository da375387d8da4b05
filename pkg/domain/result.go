package domain

import (
	"fmt"
	"time"
)

// ActionResult is the outcome of one action invocation. Failures are data:
// Err holds whatever the action returned or panicked with.
type ActionResult struct {
	Result        any
	ExecutionTime time.Duration
	Err           error
}

// NewActionResult builds an ActionResult, rejecting negative durations.
func NewActionResult(result any, err error, elapsed time.Duration) (*ActionResult, error) {
	if elapsed < 0 {
		return nil, fmt.Errorf("%w: negative execution time %s", ErrInvalidArgument, elapsed)
	}
	return &ActionResult{Result: result, ExecutionTime: elapsed, Err: err}, nil
}

// IsError reports whether the action failed.
func (r *ActionResult) IsError() bool {
	return r.Err != nil
}

// ExecutionTimeMs returns the compute duration in milliseconds.
func (r *ActionResult) ExecutionTimeMs() int64 {
	return r.ExecutionTime.Milliseconds()
}
