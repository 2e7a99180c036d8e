package statefile

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path so that readers either see the
// previous content or the full new content, never a truncation.
//
// The temp file lives in the same directory as the target to guarantee the
// rename stays on one filesystem, is created with owner-only permissions,
// and is synced before the rename. On any failure before the rename the
// temp file is removed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+".tmp."+randomSuffix())

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if perm != 0600 {
		if err := os.Chmod(tmpPath, perm); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	// Rename is the only operation that mutates the visible target.
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize write: %w", err)
	}

	return nil
}

// randomSuffix generates a random suffix for temp files.
func randomSuffix() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
