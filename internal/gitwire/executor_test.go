package gitwire_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/internal/gitwire"
)

func TestNewExecutor_Defaults(t *testing.T) {
	t.Parallel()

	e := gitwire.NewExecutor()
	_, err := e.Run(context.Background(), "", "version")
	require.NoError(t, err)
}

func TestExecutor_RunOutput(t *testing.T) {
	t.Parallel()

	e := gitwire.NewExecutor()

	out, err := e.RunOutput(context.Background(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "git version")
}

func TestExecutor_RunRejectsDangerousArgs(t *testing.T) {
	t.Parallel()

	e := gitwire.NewExecutor()

	_, err := e.Run(context.Background(), "", "status", "; rm -rf /")
	require.Error(t, err)
}

func TestExecutor_RunInRepo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := gitwire.NewExecutor()
	ctx := context.Background()

	_, err := e.Run(ctx, dir, "init")
	require.NoError(t, err)

	_, err = e.Run(ctx, dir, "config", "user.name", "prdiff-test")
	require.NoError(t, err)

	_, err = e.Run(ctx, dir, "config", "user.email", "prdiff-test@example.com")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o600))

	lines, err := e.RunLines(ctx, dir, "status", "--porcelain")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "a.txt")
}

func TestExecutor_RunLines_EmptyOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := gitwire.NewExecutor()
	ctx := context.Background()

	_, err := e.Run(ctx, dir, "init")
	require.NoError(t, err)

	lines, err := e.RunLines(ctx, dir, "status", "--porcelain")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestExecutor_Timeout(t *testing.T) {
	t.Parallel()

	e := gitwire.NewExecutor(gitwire.WithTimeout(1 * time.Nanosecond))

	_, err := e.Run(context.Background(), "", "version")
	require.Error(t, err)
}

func TestGitError_Error(t *testing.T) {
	t.Parallel()

	err := &gitwire.GitError{
		Command:  "git status",
		ExitCode: 128,
		Stderr:   "not a git repository",
	}

	assert.Contains(t, err.Error(), "git status")
	assert.Contains(t, err.Error(), "128")
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestGitError_Is(t *testing.T) {
	t.Parallel()

	err1 := &gitwire.GitError{Command: "git status", ExitCode: 128}
	err2 := &gitwire.GitError{Command: "git clone", ExitCode: 1}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(context.Canceled))
}
