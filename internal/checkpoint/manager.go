package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/artifact"
	"github.com/fyrsmithlabs/pipelined/internal/pipeline"
	"github.com/fyrsmithlabs/pipelined/internal/statefile"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/pipelined/internal/checkpoint"

	componentName  = "checkpoint-manager"
	checkpointFile = "checkpoint.json"
)

// Errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the workflow.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrMonotonicity indicates a write would shrink or reorder the
	// completed-stages ledger.
	ErrMonotonicity = errors.New("completed stages may only grow in order")
)

// ManifestReader is the narrow read-only view the manager needs for
// resume planning.
type ManifestReader interface {
	ReadManifest(ctx context.Context, id string) (*artifact.Manifest, error)
}

// ArtifactChecker reports whether a named artifact resolves to an
// existing file. Validation trusts the filesystem, not the list.
type ArtifactChecker interface {
	ArtifactExists(id, name string) bool
}

// Manager persists and validates workflow checkpoints.
type Manager struct {
	root      string
	locks     *statefile.LockRegistry
	auditor   *statefile.Auditor
	logger    *zap.Logger
	manifests ManifestReader
	artifacts ArtifactChecker

	tracer       trace.Tracer
	meter        metric.Meter
	writeCounter metric.Int64Counter
	skipCounter  metric.Int64Counter
}

// NewManager creates a checkpoint manager over the workflows root. The
// manifest reader and artifact checker are narrow read-only views,
// normally both backed by the artifact store.
func NewManager(root string, locks *statefile.LockRegistry, auditor *statefile.Auditor, manifests ManifestReader, artifacts ArtifactChecker, logger *zap.Logger) (*Manager, error) {
	if root == "" {
		return nil, errors.New("workflows root is required")
	}
	if locks == nil {
		return nil, errors.New("lock registry is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	if manifests == nil {
		return nil, errors.New("manifest reader is required")
	}
	if artifacts == nil {
		return nil, errors.New("artifact checker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflows root: %w", err)
	}

	m := &Manager{
		root:      absRoot,
		locks:     locks,
		auditor:   auditor,
		logger:    logger,
		manifests: manifests,
		artifacts: artifacts,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	m.initMetrics()

	return m, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (m *Manager) initMetrics() {
	var err error

	m.writeCounter, err = m.meter.Int64Counter(
		"pipelined.checkpoint.writes_total",
		metric.WithDescription("Total checkpoint writes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		m.logger.Warn("failed to create write counter", zap.Error(err))
	}

	m.skipCounter, err = m.meter.Int64Counter(
		"pipelined.checkpoint.scan_skips_total",
		metric.WithDescription("Checkpoints skipped during listing because they were unreadable or corrupt"),
		metric.WithUnit("{skip}"),
	)
	if err != nil {
		m.logger.Warn("failed to create skip counter", zap.Error(err))
	}
}

// Create atomically overwrites the single checkpoint file for the
// workflow and returns its path. Two identical calls in a row are
// idempotent modulo the server-assigned timestamp. A write that would
// shrink or reorder completed_stages relative to the previous checkpoint
// is rejected.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (string, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("workflow_id", req.WorkflowID),
		attribute.String("checkpoint_type", string(req.CheckpointType)),
		attribute.Int("completed_stages", len(req.CompletedStages)),
	)

	if req.WorkflowID == "" {
		return "", errors.New("workflow id is required")
	}
	if req.CheckpointType == "" {
		req.CheckpointType = TypeStageCompletion
	}

	// Hold the per-file lock across the read-compare-write so concurrent
	// writers can't interleave between the monotonicity check and the
	// save. The lock is reentrant; the nested Load and Save reacquire it.
	store, err := m.fileStore(req.WorkflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	lock := m.locks.Get(store.Path())
	lock.Lock()
	defer lock.Unlock()

	prev, err := m.Load(ctx, req.WorkflowID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if prev != nil {
		if err := pipeline.ValidatePrefix(pipeline.Stages(req.CompletedStages), pipeline.Stages(prev.CompletedStages)); err != nil {
			span.SetStatus(codes.Error, "monotonicity violation")
			return "", fmt.Errorf("%w: %v", ErrMonotonicity, err)
		}
	}

	cp := &Checkpoint{
		Version:          SchemaVersion,
		WorkflowID:       req.WorkflowID,
		CreatedAt:        time.Now().UTC(),
		CheckpointType:   req.CheckpointType,
		CompletedStages:  req.CompletedStages,
		CurrentStage:     req.CurrentStage,
		ArtifactsCreated: req.ArtifactsCreated,
		Metadata:         req.Metadata,
	}
	if cp.CompletedStages == nil {
		cp.CompletedStages = []string{}
	}
	if cp.ArtifactsCreated == nil {
		cp.ArtifactsCreated = []string{}
	}
	if cp.Metadata == nil {
		cp.Metadata = map[string]any{}
	}

	if err := store.SaveJSON(ctx, cp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if m.writeCounter != nil {
		m.writeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checkpoint_type", string(cp.CheckpointType)),
		))
	}

	m.logger.Info("wrote checkpoint",
		zap.String("workflow_id", cp.WorkflowID),
		zap.String("checkpoint_type", string(cp.CheckpointType)),
		zap.Strings("completed_stages", cp.CompletedStages),
	)

	return store.Path(), nil
}

// Load reads the checkpoint for a workflow. A missing checkpoint returns
// (nil, nil), never an error.
func (m *Manager) Load(ctx context.Context, id string) (*Checkpoint, error) {
	store, err := m.fileStore(id)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := store.LoadJSON(ctx, &cp); err != nil {
		if errors.Is(err, statefile.ErrStateNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

// Exists reports whether a checkpoint file exists for the workflow.
func (m *Manager) Exists(id string) bool {
	path, err := statefile.ValidatePath(filepath.Join(m.root, id, checkpointFile), m.root)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the checkpoint for a workflow. Deleting an absent
// checkpoint is a no-op.
func (m *Manager) Delete(ctx context.Context, id string) error {
	store, err := m.fileStore(id)
	if err != nil {
		return err
	}
	if err := store.Cleanup(ctx); err != nil {
		return err
	}

	m.logger.Info("deleted checkpoint", zap.String("workflow_id", id))
	return nil
}

// Validate checks that the checkpoint for id has its required fields and
// that every filename in artifacts_created resolves to an existing file.
// It returns the first violation found; the artifact list is never
// trusted without checking the filesystem.
func (m *Manager) Validate(ctx context.Context, id string) (bool, string) {
	cp, err := m.Load(ctx, id)
	if err != nil {
		return false, fmt.Sprintf("checkpoint unreadable: %v", err)
	}
	if cp == nil {
		return false, "checkpoint does not exist"
	}

	if cp.Version == "" {
		return false, "missing required field: version"
	}
	if cp.WorkflowID == "" {
		return false, "missing required field: workflow_id"
	}
	if cp.WorkflowID != id {
		return false, fmt.Sprintf("workflow_id mismatch: checkpoint has %q", cp.WorkflowID)
	}
	if cp.CreatedAt.IsZero() {
		return false, "missing required field: created_at"
	}
	if cp.CheckpointType == "" {
		return false, "missing required field: checkpoint_type"
	}
	if cp.CompletedStages == nil {
		return false, "missing required field: completed_stages"
	}

	for _, name := range cp.ArtifactsCreated {
		if !m.artifacts.ArtifactExists(id, name) {
			return false, fmt.Sprintf("artifact %q listed in artifacts_created does not exist", name)
		}
	}

	return true, ""
}

// ListResumable scans the workflows root for checkpoints, newest first.
// Entries with unreadable or corrupt checkpoints are skipped rather than
// failing the whole listing; every skip is logged and counted.
func (m *Manager) ListResumable(ctx context.Context) ([]*Summary, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.list_resumable")
	defer span.End()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan workflows root: %w", err)
	}

	var summaries []*Summary
	skipped := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if !m.Exists(id) {
			continue
		}

		cp, err := m.Load(ctx, id)
		if err != nil || cp == nil || cp.WorkflowID == "" {
			skipped++
			m.logger.Warn("skipping unreadable checkpoint",
				zap.String("workflow_id", id),
				zap.Error(err),
			)
			continue
		}

		summaries = append(summaries, &Summary{
			WorkflowID:      cp.WorkflowID,
			CreatedAt:       cp.CreatedAt,
			CompletedStages: cp.CompletedStages,
			CurrentStage:    cp.CurrentStage,
		})
	}

	if skipped > 0 && m.skipCounter != nil {
		m.skipCounter.Add(ctx, int64(skipped))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	span.SetAttributes(
		attribute.Int("result_count", len(summaries)),
		attribute.Int("skipped", skipped),
	)
	return summaries, nil
}

// ResumePlan computes the remaining work for a workflow: the
// order-preserving difference between the manifest's canonical plan and
// the checkpoint's completed stages.
func (m *Manager) ResumePlan(ctx context.Context, id string) (*ResumePlan, error) {
	cp, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}

	manifest, err := m.manifests.ReadManifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for resume plan: %w", err)
	}

	canonical := pipeline.Stages(manifest.Plan.Canonical)
	completed := pipeline.Stages(cp.CompletedStages)
	remaining := pipeline.Remaining(canonical, completed)

	plan := &ResumePlan{
		WorkflowID:      id,
		CompletedStages: cp.CompletedStages,
		Remaining:       pipeline.Names(remaining),
		CanResume:       len(remaining) > 0,
	}
	if len(remaining) > 0 {
		plan.NextStage = StageRef(string(remaining[0]))
	}
	if total := len(canonical); total > 0 {
		plan.ProgressPercentage = len(completed) * 100 / total
	}

	return plan, nil
}

// fileStore builds the statefile store for a workflow's checkpoint file.
func (m *Manager) fileStore(id string) (*statefile.FileStore, error) {
	return statefile.NewFileStore(componentName, filepath.Join(m.root, id, checkpointFile), m.root, m.locks, m.auditor)
}
