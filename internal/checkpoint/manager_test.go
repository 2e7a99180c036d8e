package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/artifact"
	"github.com/fyrsmithlabs/pipelined/internal/statefile"
)

type fixture struct {
	root      string
	artifacts *artifact.Store
	manager   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	locks := statefile.NewLockRegistry()
	auditor := statefile.NewAuditor(zap.NewNop(), false)

	artifacts, err := artifact.NewStore(root, locks, auditor, zap.NewNop())
	require.NoError(t, err)

	manager, err := NewManager(root, locks, auditor, artifacts, artifacts, zap.NewNop())
	require.NoError(t, err)

	return &fixture{root: root, artifacts: artifacts, manager: manager}
}

// seedWorkflow creates a workflow directory and manifest with the given
// canonical plan.
func (f *fixture) seedWorkflow(t *testing.T, id string, canonical []string) {
	t.Helper()
	_, err := f.artifacts.CreateWorkflowDir(id)
	require.NoError(t, err)
	_, err = f.artifacts.WriteManifest(context.Background(), &artifact.Manifest{
		WorkflowID: id,
		Request:    "add rate limiting",
		Plan:       artifact.StagePlan{Canonical: canonical},
	})
	require.NoError(t, err)
}

func (f *fixture) seedArtifact(t *testing.T, id, stage string) string {
	t.Helper()
	name, err := f.artifacts.WriteArtifact(context.Background(), id, stage, json.RawMessage(`{}`))
	require.NoError(t, err)
	return name
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	root := t.TempDir()
	locks := statefile.NewLockRegistry()
	auditor := statefile.NewAuditor(zap.NewNop(), false)
	artifacts, err := artifact.NewStore(root, locks, auditor, zap.NewNop())
	require.NoError(t, err)

	_, err = NewManager("", locks, auditor, artifacts, artifacts, zap.NewNop())
	assert.Error(t, err)

	_, err = NewManager(root, locks, auditor, nil, artifacts, zap.NewNop())
	assert.Error(t, err)

	_, err = NewManager(root, locks, auditor, artifacts, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})

	path, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:       "wf_1",
		CheckpointType:   TypeStageCompletion,
		CompletedStages:  []string{"research"},
		CurrentStage:     StageRef("plan"),
		ArtifactsCreated: []string{"research.json"},
		Metadata:         map[string]any{"attempt": "first"},
	})
	require.NoError(t, err)
	assert.FileExists(t, path)

	cp, err := f.manager.Load(ctx, "wf_1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, SchemaVersion, cp.Version)
	assert.Equal(t, "wf_1", cp.WorkflowID)
	assert.Equal(t, TypeStageCompletion, cp.CheckpointType)
	assert.Equal(t, []string{"research"}, cp.CompletedStages)
	require.NotNil(t, cp.CurrentStage)
	assert.Equal(t, "plan", *cp.CurrentStage)
	assert.Equal(t, []string{"research.json"}, cp.ArtifactsCreated)
	assert.Equal(t, "first", cp.Metadata["attempt"])
	assert.False(t, cp.CreatedAt.IsZero())
}

func TestCreate_IdenticalWritesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})

	req := &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research"},
		CurrentStage:    StageRef("plan"),
	}
	_, err := f.manager.Create(ctx, req)
	require.NoError(t, err)
	first, err := f.manager.Load(ctx, "wf_1")
	require.NoError(t, err)

	_, err = f.manager.Create(ctx, req)
	require.NoError(t, err)
	second, err := f.manager.Load(ctx, "wf_1")
	require.NoError(t, err)

	// Identical decoded content both times, modulo the assigned timestamp.
	first.CreatedAt = second.CreatedAt
	assert.Equal(t, first, second)
}

func TestCreate_RejectsShrinkingCompletedStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan", "implement"})

	_, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research", "plan"},
	})
	require.NoError(t, err)

	_, err = f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research"},
	})
	assert.ErrorIs(t, err, ErrMonotonicity)

	_, err = f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"plan", "research"},
	})
	assert.ErrorIs(t, err, ErrMonotonicity)

	// Growth in order is fine.
	_, err = f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research", "plan", "implement"},
	})
	assert.NoError(t, err)
}

func TestLoad_MissingReturnsNilNil(t *testing.T) {
	f := newFixture(t)

	cp, err := f.manager.Load(context.Background(), "wf_ghost")
	assert.NoError(t, err)
	assert.Nil(t, cp)
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research"})

	assert.False(t, f.manager.Exists("wf_1"))

	_, err := f.manager.Create(ctx, &CreateRequest{WorkflowID: "wf_1"})
	require.NoError(t, err)
	assert.True(t, f.manager.Exists("wf_1"))

	require.NoError(t, f.manager.Delete(ctx, "wf_1"))
	assert.False(t, f.manager.Exists("wf_1"))

	// Deleting an absent checkpoint is a no-op.
	assert.NoError(t, f.manager.Delete(ctx, "wf_1"))
}

func TestValidate_RequiredFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research"})

	valid, reason := f.manager.Validate(ctx, "wf_1")
	assert.False(t, valid)
	assert.Contains(t, reason, "does not exist")

	// A checkpoint missing workflow_id.
	raw := `{"version":"1.0","created_at":"2026-01-02T15:04:05Z","checkpoint_type":"initial","completed_stages":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "wf_1", "checkpoint.json"), []byte(raw), 0600))

	valid, reason = f.manager.Validate(ctx, "wf_1")
	assert.False(t, valid)
	assert.Contains(t, reason, "workflow_id")
}

func TestValidate_DanglingArtifactNamed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})
	name := f.seedArtifact(t, "wf_1", "research")

	_, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:       "wf_1",
		CompletedStages:  []string{"research"},
		ArtifactsCreated: []string{name},
	})
	require.NoError(t, err)

	valid, reason := f.manager.Validate(ctx, "wf_1")
	assert.True(t, valid, reason)

	// Delete the listed artifact: validation must name it.
	require.NoError(t, os.Remove(filepath.Join(f.root, "wf_1", name)))

	valid, reason = f.manager.Validate(ctx, "wf_1")
	assert.False(t, valid)
	assert.Contains(t, reason, "research.json")
}

func TestListResumable_SortedAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seedWorkflow(t, "wf_old", []string{"research"})
	_, err := f.manager.Create(ctx, &CreateRequest{WorkflowID: "wf_old"})
	require.NoError(t, err)

	f.seedWorkflow(t, "wf_new", []string{"research"})
	_, err = f.manager.Create(ctx, &CreateRequest{WorkflowID: "wf_new"})
	require.NoError(t, err)

	// Force distinct ordering regardless of clock resolution.
	bumpCheckpointTime(t, filepath.Join(f.root, "wf_new", "checkpoint.json"))

	// A workflow with a corrupt checkpoint is skipped, not fatal.
	f.seedWorkflow(t, "wf_bad", []string{"research"})
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "wf_bad", "checkpoint.json"), []byte("{corrupt"), 0600))

	summaries, err := f.manager.ListResumable(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "wf_new", summaries[0].WorkflowID)
	assert.Equal(t, "wf_old", summaries[1].WorkflowID)
}

// bumpCheckpointTime rewrites a checkpoint's created_at far into the
// future so listing order is deterministic.
func bumpCheckpointTime(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cp Checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	cp.CreatedAt = cp.CreatedAt.AddDate(1, 0, 0)

	out, err := json.Marshal(&cp)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0600))
}

func TestResumePlan_RemainingAndNextStage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"a", "b", "c", "d"})

	_, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"a", "b"},
		CurrentStage:    StageRef("c"),
	})
	require.NoError(t, err)

	plan, err := f.manager.ResumePlan(ctx, "wf_1")
	require.NoError(t, err)
	require.NotNil(t, plan.NextStage)
	assert.Equal(t, "c", *plan.NextStage)
	assert.Equal(t, []string{"c", "d"}, plan.Remaining)
	assert.Equal(t, 50, plan.ProgressPercentage)
	assert.True(t, plan.CanResume)
}

func TestResumePlan_TruncatedPercentage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan", "test_design", "implement", "review", "security_audit"})

	_, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research"},
		CurrentStage:    StageRef("plan"),
	})
	require.NoError(t, err)

	plan, err := f.manager.ResumePlan(ctx, "wf_1")
	require.NoError(t, err)
	assert.Equal(t, 16, plan.ProgressPercentage, "floor(1/6*100)")
	require.NotNil(t, plan.NextStage)
	assert.Equal(t, "plan", *plan.NextStage)
	assert.True(t, plan.CanResume)
}

func TestResumePlan_NothingRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"a", "b"})

	_, err := f.manager.Create(ctx, &CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"a", "b"},
	})
	require.NoError(t, err)

	plan, err := f.manager.ResumePlan(ctx, "wf_1")
	require.NoError(t, err)
	assert.Nil(t, plan.NextStage)
	assert.Empty(t, plan.Remaining)
	assert.Equal(t, 100, plan.ProgressPercentage)
	assert.False(t, plan.CanResume)
}

func TestResumePlan_MissingCheckpoint(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.ResumePlan(context.Background(), "wf_ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
