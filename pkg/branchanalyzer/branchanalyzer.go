// Package branchanalyzer runs the configured tool adapters against one
// working tree, concurrently with bounded fan-out, and aggregates their
// issues into a single deduplicated, cached branch-analysis result.
package branchanalyzer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lindara-dev/prdiff/pkg/cache"
	"github.com/lindara-dev/prdiff/pkg/issue"
)

// cacheTTL is fixed at one hour. The key intentionally omits the commit
// hash: a branch pointer may move, but the TTL bounds staleness and
// re-analysis is cheap when per-tool caches are warm.
const cacheTTL = time.Hour

// Metrics aggregates one branch analysis's counters.
type Metrics struct {
	TotalIssues      int            `json:"totalIssues"`
	BySeverity       map[string]int `json:"bySeverity"`
	ByCategory       map[string]int `json:"byCategory"`
	ByTool           map[string]int `json:"byTool"`
	CriticalityScore float64        `json:"criticalityScore"`
	Duration         time.Duration  `json:"duration"`
	FilesAnalyzed    int            `json:"filesAnalyzed"`
	FailedTools      []string       `json:"failedTools,omitempty"`
}

// Result is a branch analysis's cached output.
type Result struct {
	Branch     string            `json:"branch"`
	CommitHash string            `json:"commitHash"`
	FileCount  int               `json:"fileCount"`
	ToolCount  int               `json:"toolCount"`
	Issues     []issue.ToolIssue `json:"issues"`
	Metrics    Metrics           `json:"metrics"`
	AnalyzedAt time.Time         `json:"analyzedAt"`
}

// severityWeight holds the criticality score's per-severity weights. It is
// a fixed table; Options offers no way to change the weighting.
var severityWeight = map[issue.Severity]float64{
	issue.SeverityCritical: 10,
	issue.SeverityHigh:     5,
	issue.SeverityMedium:   2,
	issue.SeverityLow:      1,
	issue.SeverityInfo:     0.2,
}

// Options configures one analysis run.
type Options struct {
	Adapters       []issue.Adapter
	Fanout         int           // default runtime.NumCPU()
	PerToolTimeout time.Duration // default 60s
}

// FileSource is the minimal file-listing contract branchanalyzer needs from
// a repository index, kept narrow so it does not import pkg/fileindex
// directly.
type FileSource interface {
	Paths() []string
	LanguageOf(path string) string
}

// Analyze runs every enabled adapter against workingTreePath, bounded by
// opts.Fanout concurrent invocations, deduplicates the aggregated issues by
// fingerprint, and caches the result at (repo, branch) for one hour.
func Analyze(
	ctx context.Context,
	c *cache.Cache,
	repoURL, branch, commitHash, workingTreePath string,
	files FileSource,
	opts Options,
) (*Result, error) {
	key := cache.Key{Kind: cache.KindBranch, Repo: repoURL, Branch: branch}

	if c != nil {
		var cached Result
		if cache.GetTyped(ctx, c, key, &cached) {
			return &cached, nil
		}
	}

	start := time.Now()

	fanout := opts.Fanout
	if fanout <= 0 {
		fanout = runtime.NumCPU()
	}

	perToolTimeout := opts.PerToolTimeout
	if perToolTimeout <= 0 {
		perToolTimeout = 60 * time.Second
	}

	allPaths := files.Paths()

	type toolOutput struct {
		tool   string
		issues []issue.ToolIssue
		failed bool
	}

	outputs := make([]toolOutput, len(opts.Adapters))

	sem := semaphore.NewWeighted(int64(fanout))
	group, gctx := errgroup.WithContext(ctx)

	for i, adapter := range opts.Adapters {
		i, adapter := i, adapter

		group.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return fmt.Errorf("branchanalyzer: acquire fanout slot: %w", err)
			}
			defer sem.Release(1)

			selected := selectFiles(adapter, allPaths, files)

			toolCtx, cancel := context.WithTimeout(gctx, perToolTimeout)
			defer cancel()

			issues, err := adapter.Invoke(toolCtx, workingTreePath, selected)

			outputs[i] = toolOutput{tool: adapter.Name(), issues: issues, failed: err != nil}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Stable iteration order: tool name (registration order), then issue
	// index, so fingerprint-dedup tie-breaks are deterministic.
	var allIssues []issue.ToolIssue
	var failedTools []string

	for _, out := range outputs {
		if out.failed {
			failedTools = append(failedTools, out.tool)

			continue
		}

		allIssues = append(allIssues, out.issues...)
	}

	deduped := Dedup(allIssues)

	metrics := computeMetrics(deduped, len(allPaths), time.Since(start), failedTools)

	result := &Result{
		Branch:     branch,
		CommitHash: commitHash,
		FileCount:  len(allPaths),
		ToolCount:  len(opts.Adapters),
		Issues:     deduped,
		Metrics:    metrics,
		AnalyzedAt: time.Now(),
	}

	if c != nil {
		_ = cache.PutTyped(ctx, c, key, result, cacheTTL)
	}

	return result, nil
}

func selectFiles(adapter issue.Adapter, allPaths []string, files FileSource) []string {
	var selected []string

	for _, p := range allPaths {
		if adapter.SelectsFile(p, files.LanguageOf(p)) {
			selected = append(selected, p)
		}
	}

	return selected
}

// Dedup deduplicates issues by fingerprint, keeping the higher-detail-score
// issue on a tie, first-seen order as the final tie-break. Dedup is
// idempotent: deduplicating an already-deduplicated list yields the same
// list.
func Dedup(issues []issue.ToolIssue) []issue.ToolIssue {
	type entry struct {
		issue issue.ToolIssue
		order int
	}

	best := make(map[string]entry, len(issues))
	order := make([]string, 0, len(issues))

	for i, iss := range issues {
		fp := iss.Fingerprint
		if fp == "" {
			fp = issue.Fingerprint(iss.Tool, iss.RuleID, iss.File, iss.StartLine, iss.Message)
			iss.Fingerprint = fp
		}

		existing, ok := best[fp]
		if !ok {
			best[fp] = entry{issue: iss, order: i}
			order = append(order, fp)

			continue
		}

		if iss.DetailScore() > existing.issue.DetailScore() {
			best[fp] = entry{issue: iss, order: existing.order}
		}
	}

	result := make([]issue.ToolIssue, 0, len(order))
	for _, fp := range order {
		result = append(result, best[fp].issue)
	}

	return result
}

func computeMetrics(issues []issue.ToolIssue, fileCount int, duration time.Duration, failedTools []string) Metrics {
	m := Metrics{
		TotalIssues:   len(issues),
		BySeverity:    map[string]int{},
		ByCategory:    map[string]int{},
		ByTool:        map[string]int{},
		Duration:      duration,
		FilesAnalyzed: fileCount,
		FailedTools:   failedTools,
	}

	criticality := 0.0

	for _, iss := range issues {
		m.BySeverity[string(iss.Severity)]++
		m.ByCategory[string(iss.Category)]++
		m.ByTool[iss.Tool]++
		criticality += severityWeight[iss.Severity]
	}

	m.CriticalityScore = criticality

	return m
}
