package statefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Store is the capability contract every stateful component implements.
// Load fails with a *StateError when the target is missing or corrupt;
// Save is durable on return; Cleanup is idempotent and never fails just
// because the target was already absent.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Cleanup(ctx context.Context) error
}

// FileStore implements Store for one file under an allowed root, combining
// path validation, per-path locking, and atomic writes.
type FileStore struct {
	component string
	path      string
	root      string
	locks     *LockRegistry
	auditor   *Auditor
}

// NewFileStore validates path against root and returns a store for it.
// The registry and auditor are shared across stores of one persistence
// root; both are required.
func NewFileStore(component, path, root string, locks *LockRegistry, auditor *Auditor) (*FileStore, error) {
	if locks == nil {
		return nil, fmt.Errorf("lock registry is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("auditor is required")
	}

	validated, err := ValidatePath(path, root)
	if err != nil {
		auditor.Violation(context.Background(), component, "validate", path, err)
		return nil, newStateError(component, "validate", path, err)
	}

	return &FileStore{
		component: component,
		path:      validated,
		root:      root,
		locks:     locks,
		auditor:   auditor,
	}, nil
}

// Path returns the validated absolute path of the target.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the full content of the target.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	lock := s.locks.Get(s.path)
	lock.Lock()
	defer lock.Unlock()

	// Re-validate under the lock; a symlink swapped in since construction
	// must still be caught.
	if _, err := ValidatePath(s.path, s.root); err != nil {
		s.auditor.Violation(ctx, s.component, "load", s.path, err)
		return nil, newStateError(s.component, "load", s.path, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newStateError(s.component, "load", s.path, ErrStateNotFound)
		}
		s.auditor.Violation(ctx, s.component, "load", s.path, err)
		return nil, newStateError(s.component, "load", s.path, err)
	}

	s.auditor.Success(s.component, "load", s.path)
	return data, nil
}

// Save atomically replaces the target with data.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	lock := s.locks.Get(s.path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := ValidatePath(s.path, s.root); err != nil {
		s.auditor.Violation(ctx, s.component, "save", s.path, err)
		return newStateError(s.component, "save", s.path, err)
	}

	if err := WriteFileAtomic(s.path, data, 0600); err != nil {
		s.auditor.Violation(ctx, s.component, "save", s.path, err)
		return newStateError(s.component, "save", s.path, err)
	}

	s.auditor.Success(s.component, "save", s.path)
	return nil
}

// Cleanup removes the target. Removing an absent target is a no-op.
func (s *FileStore) Cleanup(ctx context.Context) error {
	lock := s.locks.Get(s.path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.auditor.Violation(ctx, s.component, "cleanup", s.path, err)
		return newStateError(s.component, "cleanup", s.path, err)
	}

	s.auditor.Success(s.component, "cleanup", s.path)
	return nil
}

// LoadJSON loads the target and decodes it into v. Decode failures are
// reported as corrupt state, not raw unmarshal errors.
func (s *FileStore) LoadJSON(ctx context.Context, v any) error {
	data, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newStateError(s.component, "decode", s.path, fmt.Errorf("%w: %v", ErrStateCorrupt, err))
	}
	return nil
}

// SaveJSON encodes v and saves it atomically.
func (s *FileStore) SaveJSON(ctx context.Context, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return newStateError(s.component, "encode", s.path, err)
	}
	return s.Save(ctx, data)
}
