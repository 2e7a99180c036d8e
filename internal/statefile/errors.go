package statefile

import (
	"errors"
	"fmt"
)

// Sentinel errors for persistence failures.
var (
	// ErrPathTraversal indicates a path contains a parent-directory token.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrSymlink indicates the target (or its canonical form) is a symlink.
	ErrSymlink = errors.New("symlinked paths are not allowed")

	// ErrOutsideRoot indicates a canonical path escapes the allowed root.
	ErrOutsideRoot = errors.New("path escapes allowed root")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrStateNotFound indicates the state target does not exist.
	ErrStateNotFound = errors.New("state not found")

	// ErrStateCorrupt indicates the state target exists but cannot be decoded.
	ErrStateCorrupt = errors.New("state corrupt")
)

// StateError describes a persistence failure with enough context for the
// audit trail: the operation attempted, the offending path, and the
// component that attempted it.
type StateError struct {
	Op        string
	Path      string
	Component string
	Err       error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", e.Component, e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StateError) Unwrap() error {
	return e.Err
}

// newStateError wraps err with operation context.
func newStateError(component, op, path string, err error) *StateError {
	return &StateError{Op: op, Path: path, Component: component, Err: err}
}
