// Package statefile is the shared persistence core for pipelined.
//
// Every component that keeps durable state on disk (checkpoints, manifests,
// stage artifacts) goes through this package. It provides:
//
//   - Path validation that rejects traversal tokens, symlinked targets
//     (checked both before and after canonicalization), and any canonical
//     path outside an explicitly allowed root.
//   - Atomic writes: full content to a temp file in the target's directory,
//     owner-only permissions, fsync, then rename. A crash mid-write never
//     leaves a partially written target visible.
//   - A per-path lock registry so concurrent same-process callers on one
//     logical file serialize while distinct files stay independent. Locks
//     are reentrant: a goroutine may re-acquire its own lock.
//
// All violations surface as *StateError and emit an audit record.
package statefile
