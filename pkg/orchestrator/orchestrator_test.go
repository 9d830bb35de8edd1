package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/config"
	"github.com/lindara-dev/prdiff/pkg/issue"
	"github.com/lindara-dev/prdiff/pkg/orchestrator"
	"github.com/lindara-dev/prdiff/pkg/repomanager"
)

// fakeRepoManager satisfies orchestrator.RepoManager without touching git.
type fakeRepoManager struct {
	mainDir, prDir string
	cleanedUp      bool
}

func (f *fakeRepoManager) PrepareForPR(_ context.Context, repoURL string, prNumber int, _ string) (*repomanager.WorkingTree, *repomanager.WorkingTree, error) {
	return &repomanager.WorkingTree{RepoURL: repoURL, Branch: "main", Path: f.mainDir},
		&repomanager.WorkingTree{RepoURL: repoURL, Branch: "pr-1", Path: f.prDir},
		nil
}

func (f *fakeRepoManager) GetCommitHash(_ context.Context, tree *repomanager.WorkingTree) (string, error) {
	if tree.Path == f.mainDir {
		return "main-sha", nil
	}

	return "pr-sha", nil
}

func (f *fakeRepoManager) CleanupAll() error {
	f.cleanedUp = true
	return nil
}

// fakeAdapter reports one issue on any Go file it sees, keyed off file
// content so main/PR trees produce distinguishable issues.
type fakeAdapter struct{}

func (fakeAdapter) Name() string                        { return "fake" }
func (fakeAdapter) Version(context.Context) string      { return "1.0.0" }
func (fakeAdapter) Categories() []issue.Category        { return []issue.Category{issue.CategoryQuality} }
func (fakeAdapter) SelectsFile(_, language string) bool { return language == "Go" }

func (fakeAdapter) Invoke(_ context.Context, workingTreePath string, filePaths []string) ([]issue.ToolIssue, error) {
	var issues []issue.ToolIssue

	for _, p := range filePaths {
		data, err := os.ReadFile(filepath.Join(workingTreePath, p))
		if err != nil {
			continue
		}

		issues = append(issues, issue.ToolIssue{
			Tool:      "fake",
			RuleID:    "FAKE-1",
			Category:  issue.CategoryQuality,
			Severity:  issue.SeverityMedium,
			File:      p,
			StartLine: 1,
			Message:   string(data),
		}.WithFingerprint())
	}

	return issues, nil
}

func TestAnalyzePR_EndToEnd_CleansUpAndComparesBranches(t *testing.T) {
	t.Parallel()

	mainDir := t.TempDir()
	prDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(mainDir, "a.go"), []byte("package a\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(prDir, "a.go"), []byte("package a\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(prDir, "b.go"), []byte("package a\nvar x int\n"), 0o600))

	repos := &fakeRepoManager{mainDir: mainDir, prDir: prDir}

	cfg := &config.Config{}
	cfg.Analysis.ToolConcurrency = 1
	cfg.Analysis.MaxFileSizeBytes = 1 << 20

	orch := orchestrator.New(cfg, orchestrator.Dependencies{
		Repos:    repos,
		Adapters: []issue.Adapter{fakeAdapter{}},
		Metadata: func(context.Context, repomanager.PRRef) (*orchestrator.PRMetadata, error) {
			return &orchestrator.PRMetadata{Title: "Add widgets", Author: "octocat", State: "open"}, nil
		},
	})

	report, err := orch.AnalyzePR(context.Background(), "https://github.com/acme/widgets/pull/1")
	require.NoError(t, err)

	assert.Equal(t, "acme", report.PRRef.Owner)
	assert.Equal(t, 1, report.PRRef.Number)
	assert.True(t, repos.cleanedUp)
	require.NotNil(t, report.Metadata)
	assert.Equal(t, "octocat", report.Metadata.Author)

	require.NotNil(t, report.Comparison)
	assert.Len(t, report.Comparison.NewIssues, 1)
	assert.Equal(t, "b.go", report.Comparison.NewIssues[0].File)
}

func TestAnalyzePR_RejectsMalformedURL(t *testing.T) {
	t.Parallel()

	orch := orchestrator.New(&config.Config{}, orchestrator.Dependencies{Repos: &fakeRepoManager{}})

	_, err := orch.AnalyzePR(context.Background(), "not-a-url")
	assert.Error(t, err)
}
