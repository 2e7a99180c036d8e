package coordinator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/pipelined/internal/align"
)

// Errors for workflow coordination.
var (
	// ErrStageFailed wraps an invoker failure; the checkpoint is left
	// untouched so resume retries the stage.
	ErrStageFailed = errors.New("stage failed")

	// ErrStageNotCurrent indicates an attempt to run a stage other than
	// the checkpoint's current stage.
	ErrStageNotCurrent = errors.New("stage is not the workflow's current stage")

	// ErrWorkflowNotFound indicates no checkpoint exists for the id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrSequentialIncomplete indicates parallel validation was
	// requested while a sequential stage is still pending.
	ErrSequentialIncomplete = errors.New("sequential stages not complete")
)

// AlignmentError is returned when the gate rejects a request. No
// workflow state exists on disk when this error is returned.
type AlignmentError struct {
	Reason   string
	Decision align.Decision
}

// Error implements the error interface.
func (e *AlignmentError) Error() string {
	return fmt.Sprintf("request rejected by alignment gate: %s", e.Reason)
}
