package statefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath_AllowsPathInsideRoot(t *testing.T) {
	root := t.TempDir()

	got, err := ValidatePath(filepath.Join(root, "wf_1", "checkpoint.json"), root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "wf_1", "checkpoint.json"), got)
}

func TestValidatePath_RejectsTraversalToken(t *testing.T) {
	root := t.TempDir()

	_, err := ValidatePath("../../etc/passwd", root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestValidatePath_RejectsTraversalInsideRootPrefix(t *testing.T) {
	root := t.TempDir()

	// Cleans to a path inside root, but the raw string carries the token.
	_, err := ValidatePath(filepath.Join(root, "wf_1", "..", "wf_2", "x.json"), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestValidatePath_RejectsSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "real.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	link := filepath.Join(root, "checkpoint.json")
	require.NoError(t, os.Symlink(target, link))

	_, err := ValidatePath(link, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymlink)
}

func TestValidatePath_RejectsSymlinkedParentEscapingRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	// A directory inside the root that is really a symlink out of it. The
	// raw path looks clean; only canonicalization reveals the escape.
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "wf_evil")))

	_, err := ValidatePath(filepath.Join(root, "wf_evil", "checkpoint.json"), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestValidatePath_RejectsAbsolutePathOutsideRoot(t *testing.T) {
	root := t.TempDir()

	_, err := ValidatePath("/etc/passwd", root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestValidatePath_RejectsEmptyPath(t *testing.T) {
	_, err := ValidatePath("", t.TempDir())
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestValidatePath_AllowsNotYetExistingTarget(t *testing.T) {
	root := t.TempDir()

	// Neither the workflow directory nor the file exist yet.
	_, err := ValidatePath(filepath.Join(root, "wf_new", "manifest.json"), root)
	assert.NoError(t, err)
}
