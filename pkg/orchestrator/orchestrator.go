// Package orchestrator sequences the whole two-branch analysis pipeline for
// a single PR: preparing working trees, building dual indices, running tool
// adapters on both branches concurrently, comparing results, and caching
// the comparison. It is the only package that wires every other pipeline
// package together.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"

	"github.com/lindara-dev/prdiff/pkg/branchanalyzer"
	"github.com/lindara-dev/prdiff/pkg/cache"
	"github.com/lindara-dev/prdiff/pkg/comparator"
	"github.com/lindara-dev/prdiff/pkg/config"
	"github.com/lindara-dev/prdiff/pkg/dualindex"
	"github.com/lindara-dev/prdiff/pkg/fileindex"
	"github.com/lindara-dev/prdiff/pkg/issue"
	"github.com/lindara-dev/prdiff/pkg/repomanager"
)

// RepoManager is the narrow slice of repomanager.Manager the orchestrator
// needs, so it can be swapped for a fake in tests.
type RepoManager interface {
	PrepareForPR(ctx context.Context, repoURL string, prNumber int, targetBranch string) (main, pr *repomanager.WorkingTree, err error)
	GetCommitHash(ctx context.Context, tree *repomanager.WorkingTree) (string, error)
	CleanupAll() error
}

// MetadataFetcher fetches a pull request's title/author/state. The
// production implementation calls the GitHub API; tests supply a stub.
type MetadataFetcher func(ctx context.Context, prRef repomanager.PRRef) (*PRMetadata, error)

// Dependencies are the constructed collaborators Orchestrator is injected
// with; the caller (main.go) owns their lifecycle.
type Dependencies struct {
	Cache    *cache.Cache
	Repos    RepoManager
	Adapters []issue.Adapter
	Logger   *slog.Logger

	// Metadata fetches PR title/author/state. Defaults to fetchPRMetadata
	// (a live GitHub API call) when nil.
	Metadata MetadataFetcher
}

// Orchestrator runs the end-to-end PR analysis pipeline.
type Orchestrator struct {
	cfg      *config.Config
	cache    *cache.Cache
	repos    RepoManager
	adapters []issue.Adapter
	logger   *slog.Logger
	metadata MetadataFetcher
}

// New builds an Orchestrator from cfg and deps.
func New(cfg *config.Config, deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metadata := deps.Metadata
	if metadata == nil {
		metadata = fetchPRMetadata
	}

	return &Orchestrator{
		cfg:      cfg,
		cache:    deps.Cache,
		repos:    deps.Repos,
		adapters: deps.Adapters,
		logger:   logger,
		metadata: metadata,
	}
}

// Report is the final, user-facing output of one analyze-pr run.
type Report struct {
	PRRef      repomanager.PRRef  `json:"prRef"`
	Metadata   *PRMetadata        `json:"metadata,omitempty"`
	Dual       *dualindex.Indices `json:"dual"`
	Comparison *comparator.Result `json:"comparison"`
}

// PRMetadata is best-effort information about the pull request itself,
// fetched from the GitHub API. A failure to fetch it never fails the
// analysis; Report.Metadata is simply left nil.
type PRMetadata struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	State  string `json:"state"`
}

func fetchPRMetadata(ctx context.Context, prRef repomanager.PRRef) (*PRMetadata, error) {
	client := github.NewClient(nil)

	pr, _, err := client.PullRequests.Get(ctx, prRef.Owner, prRef.Repo, prRef.Number)
	if err != nil {
		return nil, fmt.Errorf("fetch pr metadata: %w", err)
	}

	return &PRMetadata{
		Title:  pr.GetTitle(),
		Author: pr.GetUser().GetLogin(),
		State:  pr.GetState(),
	}, nil
}

// AnalyzePR runs the full pipeline for the given PR URL: parse -> prepare
// working trees -> build dual indices -> analyze both branches
// concurrently -> compare -> cache the comparison. Working trees are
// always cleaned up, even on error.
func (o *Orchestrator) AnalyzePR(ctx context.Context, prURL string) (*Report, error) {
	prRef, err := repomanager.ParsePRURL(prURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	repoURL := prRef.CloneURL()

	var metadata *PRMetadata
	if md, mdErr := o.metadata(ctx, prRef); mdErr != nil {
		o.logger.WarnContext(ctx, "orchestrator.metadata_fetch_failed", "error", mdErr)
	} else {
		metadata = md
	}

	if o.cache != nil {
		key := cache.Key{Kind: cache.KindComparison, Repo: repoURL, PRNumber: prRef.Number}

		var cached comparator.Result
		if cache.GetTyped(ctx, o.cache, key, &cached) {
			o.logger.InfoContext(ctx, "orchestrator.cache_hit", "repo", repoURL, "pr", prRef.Number)
			return &Report{PRRef: prRef, Metadata: metadata, Comparison: &cached}, nil
		}
	}

	mainTree, prTree, err := o.repos.PrepareForPR(ctx, repoURL, prRef.Number, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: prepare working trees: %w", err)
	}

	defer func() {
		if cleanupErr := o.repos.CleanupAll(); cleanupErr != nil {
			o.logger.ErrorContext(ctx, "orchestrator.cleanup_failed", "error", cleanupErr)
		}
	}()

	mainHash, err := o.repos.GetCommitHash(ctx, mainTree)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve main commit: %w", err)
	}

	prHash, err := o.repos.GetCommitHash(ctx, prTree)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve pr commit: %w", err)
	}

	indexOpts := fileindex.Options{MaxFileSize: o.cfg.Analysis.MaxFileSizeBytes}

	dual, err := dualindex.Build(ctx, o.cache, repoURL,
		dualindex.WorkingTree{Path: mainTree.Path, Branch: mainTree.Branch, CommitHash: mainHash},
		dualindex.WorkingTree{Path: prTree.Path, Branch: prTree.Branch, CommitHash: prHash},
		indexOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build dual indices: %w", err)
	}

	analyzerOpts := branchanalyzer.Options{
		Adapters:       o.adapters,
		Fanout:         o.cfg.Analysis.ToolConcurrency,
		PerToolTimeout: o.cfg.Analysis.ToolTimeout,
	}

	var mainResult, prResult *branchanalyzer.Result

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, analyzeErr := branchanalyzer.Analyze(gctx, o.cache, repoURL, mainTree.Branch, mainHash,
			mainTree.Path, indexFileSource{dual.Main}, analyzerOpts)
		if analyzeErr != nil {
			return fmt.Errorf("analyze main: %w", analyzeErr)
		}

		mainResult = result

		return nil
	})
	group.Go(func() error {
		result, analyzeErr := branchanalyzer.Analyze(gctx, o.cache, repoURL, prTree.Branch, prHash,
			prTree.Path, indexFileSource{dual.PR}, analyzerOpts)
		if analyzeErr != nil {
			return fmt.Errorf("analyze pr: %w", analyzeErr)
		}

		prResult = result

		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	comparison, err := comparator.Compare(ctx, o.cache, repoURL, prRef.Number, mainResult, prResult, dual,
		comparator.Options{MatchThreshold: o.cfg.Analysis.MatchConfidenceThreshold, IncludeUnchanged: true})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: compare: %w", err)
	}

	o.logger.InfoContext(ctx, "orchestrator.complete",
		"repo", repoURL, "pr", prRef.Number,
		"new", len(comparison.NewIssues), "fixed", len(comparison.FixedIssues))

	return &Report{PRRef: prRef, Metadata: metadata, Dual: dual, Comparison: comparison}, nil
}

// indexFileSource adapts a fileindex.RepositoryIndex to branchanalyzer's
// narrow FileSource interface.
type indexFileSource struct {
	index *fileindex.RepositoryIndex
}

func (s indexFileSource) Paths() []string { return s.index.Paths }

func (s indexFileSource) LanguageOf(path string) string {
	return s.index.Metadata[path].Language
}
