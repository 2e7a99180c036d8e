// Package pipeline defines the canonical stage plan for a software-change
// workflow: the ordered sequential stages, the parallel validator set, and
// the helpers that enforce the completed-prefix invariant.
package pipeline
