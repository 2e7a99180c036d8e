package gitinfo

import (
	git "github.com/go-git/go-git/v5"
)

// Snapshot describes the repository state at one moment. All fields are
// best-effort: a path that is not a git repository yields a zero
// Snapshot, not an error.
type Snapshot struct {
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Dirty  bool   `json:"dirty,omitempty"`
}

// Read opens the repository at path and captures branch, commit, and
// worktree cleanliness. Detection failures degrade to partial data
// rather than failing the caller.
func Read(path string) Snapshot {
	var snap Snapshot

	repo, err := git.PlainOpen(path)
	if err != nil {
		// Not a git repository, or unreadable.
		return snap
	}

	head, err := repo.Head()
	if err != nil {
		return snap
	}
	snap.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		snap.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return snap
	}
	status, err := wt.Status()
	if err != nil {
		return snap
	}
	snap.Dirty = !status.IsClean()

	return snap
}

// Empty reports whether nothing was detected at all.
func (s Snapshot) Empty() bool {
	return s.Branch == "" && s.Commit == "" && !s.Dirty
}
