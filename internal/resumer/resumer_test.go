package resumer

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
	"github.com/fyrsmithlabs/pipelined/internal/checkpoint"
	"github.com/fyrsmithlabs/pipelined/internal/statefile"
)

type fixture struct {
	root      string
	artifacts *artifact.Store
	manager   *checkpoint.Manager
	resumer   *Resumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	locks := statefile.NewLockRegistry()
	auditor := statefile.NewAuditor(zap.NewNop(), false)

	artifacts, err := artifact.NewStore(root, locks, auditor, zap.NewNop())
	require.NoError(t, err)
	manager, err := checkpoint.NewManager(root, locks, auditor, artifacts, artifacts, zap.NewNop())
	require.NoError(t, err)
	r, err := New(manager, artifacts, zap.NewNop())
	require.NoError(t, err)

	return &fixture{root: root, artifacts: artifacts, manager: manager, resumer: r}
}

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

func TestNew_RequiresViews(t *testing.T) {
	f := newFixture(t)

	_, err := New(nil, f.artifacts, zap.NewNop())
	assert.Error(t, err)
	_, err = New(f.manager, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestResume_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.resumer.Resume(context.Background(), "wf_ghost")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.False(t, f.resumer.CanResume(context.Background(), "wf_ghost"))
}

func TestResume_BuildsContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan", "test_design", "implement"})

	name, err := f.artifacts.WriteArtifact(ctx, "wf_1", "research", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, &checkpoint.CreateRequest{
		WorkflowID:       "wf_1",
		CompletedStages:  []string{"research"},
		CurrentStage:     checkpoint.StageRef("plan"),
		ArtifactsCreated: []string{name},
	})
	require.NoError(t, err)

	assert.True(t, f.resumer.CanResume(ctx, "wf_1"))

	rc, err := f.resumer.Resume(ctx, "wf_1")
	require.NoError(t, err)
	assert.Equal(t, "add rate limiting", rc.Request)
	assert.Equal(t, []string{"research"}, rc.CompletedStages)
	require.NotNil(t, rc.NextStage)
	assert.Equal(t, "plan", *rc.NextStage)
	assert.Equal(t, []string{"plan", "test_design", "implement"}, rc.Remaining)
	assert.Equal(t, 25, rc.ProgressPercentage)
	assert.Equal(t, []string{"research.json"}, rc.Artifacts)
	assert.False(t, rc.CheckpointAt.IsZero())
	assert.False(t, rc.AlreadyCompleted)
}

func TestResume_InvalidCheckpointNamesMissingArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})

	name, err := f.artifacts.WriteArtifact(ctx, "wf_1", "research", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, &checkpoint.CreateRequest{
		WorkflowID:       "wf_1",
		CompletedStages:  []string{"research"},
		ArtifactsCreated: []string{name},
	})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.root, "wf_1", name)))

	assert.False(t, f.resumer.CanResume(ctx, "wf_1"))

	_, err = f.resumer.Resume(ctx, "wf_1")
	require.ErrorIs(t, err, ErrCheckpointInvalid)
	assert.Contains(t, err.Error(), "research.json")
}

func TestResume_CompletedWorkflowIsNotAnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})

	// Completion deleted the checkpoint; only manifest and artifacts remain.
	rc, err := f.resumer.Resume(ctx, "wf_1")
	require.NoError(t, err)
	assert.True(t, rc.AlreadyCompleted)
	assert.Equal(t, 100, rc.ProgressPercentage)
	assert.Empty(t, rc.Remaining)
	assert.Nil(t, rc.NextStage)
}

func TestResume_ExhaustedPlanWithCheckpointLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedWorkflow(t, "wf_1", []string{"research", "plan"})

	_, err := f.manager.Create(ctx, &checkpoint.CreateRequest{
		WorkflowID:      "wf_1",
		CompletedStages: []string{"research", "plan"},
	})
	require.NoError(t, err)

	rc, err := f.resumer.Resume(ctx, "wf_1")
	require.NoError(t, err)
	assert.True(t, rc.AlreadyCompleted)
	assert.Nil(t, rc.NextStage)
}
