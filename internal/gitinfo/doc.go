// Package gitinfo reads a point-in-time snapshot of the repository a
// workflow targets: branch, commit, and whether the worktree is dirty.
// The snapshot is recorded in the workflow manifest so a resumed run
// can tell whether the repository moved underneath it.
package gitinfo
