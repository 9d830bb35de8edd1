package dualindex_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/dualindex"
	"github.com/lindara-dev/prdiff/pkg/fileindex"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()

	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func TestBuild_AddedRemovedModifiedUnchanged(t *testing.T) {
	t.Parallel()

	mainRoot := t.TempDir()
	write(t, mainRoot, "keep.go", "package keep\n")
	write(t, mainRoot, "gone.go", "package gone\n")
	write(t, mainRoot, "change.go", "package change\nfunc A() {}\n")

	prRoot := t.TempDir()
	write(t, prRoot, "keep.go", "package keep\n")
	write(t, prRoot, "change.go", "package change\nfunc A() {}\nfunc B() {}\n")
	write(t, prRoot, "fresh.go", "package fresh\n")

	idx, err := dualindex.Build(context.Background(), nil, "github.com/foo/bar",
		dualindex.WorkingTree{Path: mainRoot, Branch: "main", CommitHash: "m1"},
		dualindex.WorkingTree{Path: prRoot, Branch: "pr-1", CommitHash: "p1"},
		fileindex.Options{},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh.go"}, idx.Diff.Added)
	assert.Equal(t, []string{"gone.go"}, idx.Diff.Removed)
	assert.Equal(t, []string{"change.go"}, idx.Diff.Modified)
	assert.Equal(t, []string{"keep.go"}, idx.Diff.Unchanged)
	assert.Empty(t, idx.Diff.Moved)

	for _, ref := range idx.Diff.CrossRefs {
		if ref.Status == dualindex.StatusModified && ref.MainPath == "change.go" {
			assert.Greater(t, ref.Similarity, 50)
			assert.Less(t, ref.Similarity, 100)
		}
	}
}

func TestBuild_DetectsMove(t *testing.T) {
	t.Parallel()

	mainRoot := t.TempDir()
	write(t, mainRoot, "old.go", "package same\nfunc X() {}\n")

	prRoot := t.TempDir()
	write(t, prRoot, "new.go", "package same\nfunc X() {}\n")

	idx, err := dualindex.Build(context.Background(), nil, "github.com/foo/bar",
		dualindex.WorkingTree{Path: mainRoot, Branch: "main", CommitHash: "m1"},
		dualindex.WorkingTree{Path: prRoot, Branch: "pr-1", CommitHash: "p1"},
		fileindex.Options{},
	)
	require.NoError(t, err)

	assert.Empty(t, idx.Diff.Added)
	assert.Empty(t, idx.Diff.Removed)
	assert.Equal(t, map[string]string{"old.go": "new.go"}, idx.Diff.Moved)

	found := false
	for _, ref := range idx.Diff.CrossRefs {
		if ref.Status == dualindex.StatusMoved {
			assert.Equal(t, "old.go", ref.MainPath)
			assert.Equal(t, "new.go", ref.PRPath)
			assert.Equal(t, 100, ref.Similarity)
			found = true
		}
	}

	assert.True(t, found, "expected a moved cross-reference entry")
}

func TestBuild_IdenticalTrees(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "a.go", "package a\n")
	write(t, root, "b.go", "package b\n")

	idx, err := dualindex.Build(context.Background(), nil, "github.com/foo/bar",
		dualindex.WorkingTree{Path: root, Branch: "main", CommitHash: "m1"},
		dualindex.WorkingTree{Path: root, Branch: "pr-1", CommitHash: "p1"},
		fileindex.Options{},
	)
	require.NoError(t, err)

	assert.Empty(t, idx.Diff.Added)
	assert.Empty(t, idx.Diff.Removed)
	assert.Empty(t, idx.Diff.Modified)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, idx.Diff.Unchanged)
	assert.Equal(t, 0, idx.Diff.ImpactScore)
}

func TestBuild_PathPartitionInvariant(t *testing.T) {
	t.Parallel()

	mainRoot := t.TempDir()
	write(t, mainRoot, "keep.go", "package keep\n")
	write(t, mainRoot, "old.go", "package moved\n")
	write(t, mainRoot, "gone.go", "package gone\n")

	prRoot := t.TempDir()
	write(t, prRoot, "keep.go", "package keep\n")
	write(t, prRoot, "new.go", "package moved\n")
	write(t, prRoot, "fresh.go", "package fresh\n")

	idx, err := dualindex.Build(context.Background(), nil, "github.com/foo/bar",
		dualindex.WorkingTree{Path: mainRoot, Branch: "main", CommitHash: "m1"},
		dualindex.WorkingTree{Path: prRoot, Branch: "pr-1", CommitHash: "p1"},
		fileindex.Options{},
	)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, p := range idx.Diff.Added {
		seen[p]++
	}

	for _, p := range idx.Diff.Removed {
		seen[p]++
	}

	for _, p := range idx.Diff.Modified {
		seen[p]++
	}

	for _, p := range idx.Diff.Unchanged {
		seen[p]++
	}

	for from, to := range idx.Diff.Moved {
		seen[from]++
		seen[to]++
	}

	allPaths := map[string]bool{}
	for _, p := range idx.Main.Paths {
		allPaths[p] = true
	}

	for _, p := range idx.PR.Paths {
		allPaths[p] = true
	}

	for p := range allPaths {
		assert.Equal(t, 1, seen[p], "path %s should belong to exactly one partition", p)
	}
}
