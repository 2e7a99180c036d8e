package statefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, root, name string) *FileStore {
	t.Helper()
	store, err := NewFileStore("test", filepath.Join(root, name), root, NewLockRegistry(), NewAuditor(zap.NewNop(), false))
	require.NoError(t, err)
	return store
}

func TestNewFileStore_RejectsTraversal(t *testing.T) {
	root := t.TempDir()

	_, err := NewFileStore("test", "../../etc/passwd", root, NewLockRegistry(), NewAuditor(zap.NewNop(), false))
	require.Error(t, err)

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "validate", stateErr.Op)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestNewFileStore_RequiresRegistryAndAuditor(t *testing.T) {
	root := t.TempDir()

	_, err := NewFileStore("test", filepath.Join(root, "x.json"), root, nil, NewAuditor(zap.NewNop(), false))
	assert.Error(t, err)

	_, err = NewFileStore("test", filepath.Join(root, "x.json"), root, NewLockRegistry(), nil)
	assert.Error(t, err)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), "state.json")

	require.NoError(t, store.Save(ctx, []byte(`{"stage":"plan"}`)))

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"plan"}`, string(data))
}

func TestFileStore_LoadMissingFails(t *testing.T) {
	store := newTestStore(t, t.TempDir(), "absent.json")

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestFileStore_LoadJSONCorruptFails(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root, "bad.json")
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))

	var decoded map[string]any
	err := store.LoadJSON(context.Background(), &decoded)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateCorrupt)
}

func TestFileStore_CleanupIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), "state.json")

	require.NoError(t, store.Save(ctx, []byte("x")))
	require.NoError(t, store.Cleanup(ctx))

	// Second cleanup of the now-absent target is a no-op.
	assert.NoError(t, store.Cleanup(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestFileStore_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir(), "state.json")

	in := map[string]any{"workflow_id": "wf_123", "version": "1.0"}
	require.NoError(t, store.SaveJSON(ctx, in))

	var out map[string]any
	require.NoError(t, store.LoadJSON(ctx, &out))
	assert.Equal(t, "wf_123", out["workflow_id"])
	assert.Equal(t, "1.0", out["version"])
}

func TestFileStore_LoadRejectsSymlinkSwappedInAfterConstruction(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	outside := t.TempDir()

	store := newTestStore(t, root, "state.json")
	require.NoError(t, store.Save(ctx, []byte("legit")))

	// Swap the validated target for a symlink pointing outside the root.
	require.NoError(t, os.Remove(store.Path()))
	target := filepath.Join(outside, "evil.json")
	require.NoError(t, os.WriteFile(target, []byte("evil"), 0600))
	require.NoError(t, os.Symlink(target, store.Path()))

	_, err := store.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymlink)
}
