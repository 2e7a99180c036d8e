package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/align"
	"github.com/fyrsmithlabs/pipelined/internal/statefile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), statefile.NewLockRegistry(), statefile.NewAuditor(zap.NewNop(), false), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestNewStore_RequiresDependencies(t *testing.T) {
	auditor := statefile.NewAuditor(zap.NewNop(), false)

	_, err := NewStore("", statefile.NewLockRegistry(), auditor, zap.NewNop())
	assert.Error(t, err)

	_, err = NewStore(t.TempDir(), nil, auditor, zap.NewNop())
	assert.Error(t, err)

	_, err = NewStore(t.TempDir(), statefile.NewLockRegistry(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestCreateWorkflowDir(t *testing.T) {
	store := newTestStore(t)

	dir, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = store.CreateWorkflowDir("wf_01abc")
	assert.ErrorIs(t, err, ErrWorkflowExists)
}

func TestCreateWorkflowDir_RejectsTraversalID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("../escape")
	require.Error(t, err)
	assert.ErrorIs(t, err, statefile.ErrPathTraversal)
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)

	m := &Manifest{
		WorkflowID: "wf_01abc",
		Request:    "add rate limiting",
		Alignment:  align.Data{MatchedGoals: []string{"rate limiting"}},
		Plan: StagePlan{
			Canonical: []string{"research", "plan"},
			Parallel:  []string{"review"},
		},
	}
	path, err := store.WriteManifest(ctx, m)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.False(t, m.CreatedAt.IsZero(), "server-assigned timestamp")

	loaded, err := store.ReadManifest(ctx, "wf_01abc")
	require.NoError(t, err)
	assert.Equal(t, "add rate limiting", loaded.Request)
	assert.Equal(t, []string{"research", "plan"}, loaded.Plan.Canonical)
	assert.Equal(t, []string{"rate limiting"}, loaded.Alignment.MatchedGoals)
}

func TestReadManifest_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadManifest(context.Background(), "wf_ghost")
	assert.ErrorIs(t, err, ErrManifestNotFound)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)

	name, err := store.WriteArtifact(ctx, "wf_01abc", "research", json.RawMessage(`{"notes":"found it"}`))
	require.NoError(t, err)
	assert.Equal(t, "research.json", name)

	rec, err := store.ReadArtifact(ctx, "wf_01abc", "research.json")
	require.NoError(t, err)
	assert.Equal(t, "research", rec.Stage)
	assert.JSONEq(t, `{"notes":"found it"}`, string(rec.Payload))
}

func TestReadArtifact_MissingFailsExplicitly(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadArtifact(context.Background(), "wf_01abc", "plan.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteArtifact_RetryOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)

	_, err = store.WriteArtifact(ctx, "wf_01abc", "plan", json.RawMessage(`{"attempt":1}`))
	require.NoError(t, err)
	_, err = store.WriteArtifact(ctx, "wf_01abc", "plan", json.RawMessage(`{"attempt":2}`))
	require.NoError(t, err)

	rec, err := store.ReadArtifact(ctx, "wf_01abc", "plan.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"attempt":2}`, string(rec.Payload))
}

func TestArtifactExists(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)
	_, err = store.WriteArtifact(ctx, "wf_01abc", "research", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.True(t, store.ArtifactExists("wf_01abc", "research.json"))
	assert.False(t, store.ArtifactExists("wf_01abc", "plan.json"))
	assert.False(t, store.ArtifactExists("../../etc", "passwd"))
}

func TestArtifactExists_FalseAfterDeletion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateWorkflowDir("wf_01abc")
	require.NoError(t, err)
	_, err = store.WriteArtifact(ctx, "wf_01abc", "research", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(store.Root(), "wf_01abc", "research.json")))
	assert.False(t, store.ArtifactExists("wf_01abc", "research.json"))
}
