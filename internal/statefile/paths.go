package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath checks a path for security issues before it is used as a
// state target:
//
//   - The raw string must not contain a parent-directory traversal token.
//   - Neither the path nor its canonicalized form may be a symlink. The
//     check runs both before and after canonicalization because a symlink
//     swapped into a parent directory after the first check must still be
//     caught.
//   - The canonical path must stay within allowedRoot.
//
// Returns the cleaned absolute path or an error wrapping one of the
// sentinel errors above. Callers that need audit records should go through
// FileStore, which pairs every violation with one.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if allowedRoot == "" {
		return "", fmt.Errorf("allowed root is required")
	}

	// Raw-string check before any normalization. filepath.Clean would fold
	// "foo/../bar" into "bar" and hide the attempt.
	if containsTraversal(path) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if containsTraversal(absPath) {
		return "", fmt.Errorf("%w: resolves to traversal", ErrPathTraversal)
	}

	// First symlink check, on the path as given.
	if err := rejectSymlink(absPath); err != nil {
		return "", err
	}

	// Canonicalize. The target itself may not exist yet (first write), so
	// resolve the deepest existing ancestor instead of failing.
	canonical, err := canonicalize(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize path: %w", err)
	}

	// Second symlink check, after canonicalization.
	if err := rejectSymlink(canonical); err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	canonicalRoot, err := canonicalize(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize allowed root: %w", err)
	}

	rel, err := filepath.Rel(canonicalRoot, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q not under %q", ErrOutsideRoot, path, allowedRoot)
	}

	return absPath, nil
}

// containsTraversal reports whether any path element is "..".
func containsTraversal(path string) bool {
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return true
		}
	}
	return false
}

// rejectSymlink fails if path exists and is a symlink. A missing path is
// fine; it means a first write.
func rejectSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %q", ErrSymlink, path)
	}
	return nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of path
// and rejoins the non-existing suffix, so paths that don't exist yet can
// still be validated against the root.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	if dir == path {
		// Hit the filesystem root without finding an existing ancestor.
		return path, nil
	}
	resolvedDir, err := canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
