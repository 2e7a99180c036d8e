// Package resumer reconstructs interrupted workflows from their
// checkpoints. It only computes what remains; it never executes a
// stage. A checkpoint is trusted for resumption only after full
// validation, and a workflow whose plan is exhausted resumes to an
// already-completed result rather than an error.
package resumer
