package repomanager_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/repomanager"
)

// newSourceRepo builds a local bare-able repository with a main branch and
// a simulated PR head ref, so Manager can be exercised without network
// access. Returns its file:// clone URL.
func newSourceRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()

		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "--initial-branch=main")
	run("config", "user.name", "prdiff-test")
	run("config", "user.email", "prdiff-test@example.com")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o600))
	run("add", "a.txt")
	run("commit", "-m", "initial")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("two\n"), 0o600))
	run("checkout", "-b", "feature")
	run("add", "b.txt")
	run("commit", "-m", "feature commit")

	headCmd := exec.Command("git", "rev-parse", "feature")
	headCmd.Dir = dir
	headOut, err := headCmd.Output()
	require.NoError(t, err)

	run("update-ref", "refs/pull/1/head", string(headOut[:len(headOut)-1]))
	run("checkout", "main")
	run("config", "receive.denyCurrentBranch", "updateInstead")

	return "file://" + dir
}

func TestManager_CloneAndCommitHash(t *testing.T) {
	t.Parallel()

	repoURL := newSourceRepo(t)

	m, err := repomanager.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.CleanupAll() })

	tree, err := m.Clone(context.Background(), repoURL, "main", repomanager.CloneOptions{Quiet: true})
	require.NoError(t, err)

	hash, err := m.GetCommitHash(context.Background(), tree)
	require.NoError(t, err)
	require.Len(t, hash, 40)
}

func TestManager_PrepareForPR(t *testing.T) {
	t.Parallel()

	repoURL := newSourceRepo(t)

	m, err := repomanager.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.CleanupAll() })

	mainTree, prTree, err := m.PrepareForPR(context.Background(), repoURL, 1, "main")
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(mainTree.Path, "a.txt"))
	require.NoFileExists(t, filepath.Join(mainTree.Path, "b.txt"))

	require.FileExists(t, filepath.Join(prTree.Path, "a.txt"))
	require.FileExists(t, filepath.Join(prTree.Path, "b.txt"))
	require.Equal(t, "pr-1", prTree.Branch)
}

func TestManager_CleanupAllRemovesEveryDir(t *testing.T) {
	t.Parallel()

	repoURL := newSourceRepo(t)

	m, err := repomanager.New(t.TempDir())
	require.NoError(t, err)

	tree, err := m.Clone(context.Background(), repoURL, "main", repomanager.CloneOptions{Quiet: true})
	require.NoError(t, err)

	require.NoError(t, m.CleanupAll())
	require.NoDirExists(t, tree.Path)
}

func TestManager_CloneRejectsUnsafeURL(t *testing.T) {
	t.Parallel()

	m, err := repomanager.New(t.TempDir())
	require.NoError(t, err)

	_, err = m.Clone(context.Background(), "not-a-url", "main", repomanager.CloneOptions{})
	require.Error(t, err)
}
