package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/statefile"
)

const (
	componentName = "artifact-store"
	manifestFile  = "manifest.json"
)

// Errors for artifact operations.
var (
	// ErrNotFound indicates the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrManifestNotFound indicates the workflow has no manifest.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrWorkflowExists indicates the workflow directory already exists.
	ErrWorkflowExists = errors.New("workflow directory already exists")
)

// Store persists manifests and stage artifacts under a workflows root.
type Store struct {
	root    string
	locks   *statefile.LockRegistry
	auditor *statefile.Auditor
	logger  *zap.Logger
}

// NewStore creates an artifact store rooted at root, creating the root
// directory if needed. The lock registry is shared with every other
// component persisting under the same root.
func NewStore(root string, locks *statefile.LockRegistry, auditor *statefile.Auditor, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("workflows root is required")
	}
	if locks == nil {
		return nil, errors.New("lock registry is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflows root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0700); err != nil {
		return nil, fmt.Errorf("failed to create workflows root: %w", err)
	}

	return &Store{
		root:    absRoot,
		locks:   locks,
		auditor: auditor,
		logger:  logger,
	}, nil
}

// Root returns the workflows root directory.
func (s *Store) Root() string {
	return s.root
}

// WorkflowDir returns the directory for a workflow id after validating it
// against the root.
func (s *Store) WorkflowDir(id string) (string, error) {
	return statefile.ValidatePath(filepath.Join(s.root, id), s.root)
}

// CreateWorkflowDir creates the directory for a new workflow. The id must
// be unused; a collision is an error, not a reuse.
func (s *Store) CreateWorkflowDir(id string) (string, error) {
	dir, err := s.WorkflowDir(id)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrWorkflowExists, id)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create workflow directory: %w", err)
	}

	s.logger.Debug("created workflow directory", zap.String("workflow_id", id))
	return dir, nil
}

// WriteManifest persists the manifest for a new workflow. Manifests are
// written once and never updated.
func (s *Store) WriteManifest(ctx context.Context, m *Manifest) (string, error) {
	if m.WorkflowID == "" {
		return "", errors.New("manifest requires a workflow id")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	store, err := s.fileStore(m.WorkflowID, manifestFile)
	if err != nil {
		return "", err
	}
	if err := store.SaveJSON(ctx, m); err != nil {
		return "", err
	}

	s.logger.Info("wrote workflow manifest",
		zap.String("workflow_id", m.WorkflowID),
		zap.Int("plan_stages", len(m.Plan.Canonical)),
	)
	return store.Path(), nil
}

// ReadManifest loads the manifest for a workflow.
func (s *Store) ReadManifest(ctx context.Context, id string) (*Manifest, error) {
	store, err := s.fileStore(id, manifestFile)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := store.LoadJSON(ctx, &m); err != nil {
		if errors.Is(err, statefile.ErrStateNotFound) {
			return nil, fmt.Errorf("%w: workflow %s", ErrManifestNotFound, id)
		}
		return nil, err
	}
	return &m, nil
}

// WriteArtifact persists one stage's output as <stage>.json and returns
// the artifact filename. Retrying a previously failed stage overwrites its
// prior artifact; the checkpoint is latest-wins and so are artifacts.
func (s *Store) WriteArtifact(ctx context.Context, id, stage string, payload json.RawMessage) (string, error) {
	name := stage + ".json"
	store, err := s.fileStore(id, name)
	if err != nil {
		return "", err
	}

	rec := &Record{
		WorkflowID: id,
		Stage:      stage,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.SaveJSON(ctx, rec); err != nil {
		return "", err
	}

	s.logger.Debug("wrote stage artifact",
		zap.String("workflow_id", id),
		zap.String("stage", stage),
	)
	return name, nil
}

// ReadArtifact loads a named artifact. A missing artifact is ErrNotFound,
// never a default value.
func (s *Store) ReadArtifact(ctx context.Context, id, name string) (*Record, error) {
	store, err := s.fileStore(id, name)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := store.LoadJSON(ctx, &rec); err != nil {
		if errors.Is(err, statefile.ErrStateNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
		}
		return nil, err
	}
	return &rec, nil
}

// ArtifactExists reports whether a named artifact resolves to an existing
// regular file.
func (s *Store) ArtifactExists(id, name string) bool {
	path, err := statefile.ValidatePath(filepath.Join(s.root, id, name), s.root)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// fileStore builds a validated statefile store for one file in a workflow
// directory.
func (s *Store) fileStore(id, name string) (*statefile.FileStore, error) {
	return statefile.NewFileStore(componentName, filepath.Join(s.root, id, name), s.root, s.locks, s.auditor)
}
