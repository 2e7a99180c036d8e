package invoker

import (
	"context"
	"encoding/json"
	"errors"
)

// Errors for stage invocation.
var (
	// ErrNoInvoker indicates no invoker is registered for the stage.
	ErrNoInvoker = errors.New("no invoker registered for stage")

	// ErrTimeout indicates the stage did not answer within its deadline.
	ErrTimeout = errors.New("stage invocation timed out")
)

// Status is the outcome a stage reports for itself.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Request is the envelope sent to a stage collaborator.
type Request struct {
	WorkflowID string          `json:"workflow_id"`
	Stage      string          `json:"stage"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// Result is the envelope a stage collaborator answers with. Payload is
// stored verbatim as the stage's artifact on success.
type Result struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Succeeded reports whether the stage completed and produced a payload.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Invoker executes one stage and returns its result. Implementations
// must honor ctx cancellation and deadlines.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a function to the Invoker interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Invoke implements Invoker.
func (f Func) Invoke(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}
