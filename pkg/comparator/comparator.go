// Package comparator implements the two-branch comparison: matching PR-side
// issues against main-side issues (tolerant of line shifts, edits, and file
// moves), classifying each as new/fixed/unchanged, and deriving aggregate
// metrics, scores, and trend estimates.
package comparator

import (
	"context"
	"time"

	"github.com/lindara-dev/prdiff/pkg/branchanalyzer"
	"github.com/lindara-dev/prdiff/pkg/cache"
	"github.com/lindara-dev/prdiff/pkg/dualindex"
	"github.com/lindara-dev/prdiff/pkg/issue"
	"github.com/lindara-dev/prdiff/pkg/matcher"
)

// cacheTTL is fixed at five minutes: PR state changes rapidly.
const cacheTTL = 5 * time.Minute

// defaultMatchThreshold is the minimum confidence a match must clear.
const defaultMatchThreshold = 60

// Impact categorizes a "new" issue's severity-derived consequence.
type Impact string

// Recognized impacts.
const (
	ImpactBreaking  Impact = "breaking"
	ImpactDegrading Impact = "degrading"
	ImpactMinor     Impact = "minor"
)

// EstimatedEffort is a coarse, severity/category-derived effort bucket.
type EstimatedEffort string

// Recognized effort buckets.
const (
	EffortDays    EstimatedEffort = "days"
	EffortHours   EstimatedEffort = "hours"
	EffortMinutes EstimatedEffort = "minutes"
)

// EnhancedIssue is a tool issue plus comparator-derived, status-specific
// fields. Constructed once by the comparator and immutable thereafter.
type EnhancedIssue struct {
	issue.ToolIssue

	Status     issue.Status      `json:"status"`
	Confidence int               `json:"matchConfidence,omitempty"`
	MatchType  matcher.MatchType `json:"matchType,omitempty"`

	// new
	Impact         Impact `json:"impact,omitempty"`
	RequiresAction bool   `json:"requiresAction,omitempty"`
	BlocksPR       bool   `json:"blocksPr,omitempty"`

	// fixed
	Credit float64 `json:"credit,omitempty"`

	// unchanged
	OccurrenceCount int `json:"occurrenceCount,omitempty"`

	Priority        int             `json:"priority"`
	EstimatedEffort EstimatedEffort `json:"estimatedEffort"`
}

// Options configures a single compare call.
type Options struct {
	IncludeUnchanged bool
	MatchThreshold   int // default 60
}

// Scores reports the three category scores and their weighted overall.
type Scores struct {
	Security    float64 `json:"security"`
	Quality     float64 `json:"quality"`
	Performance float64 `json:"performance"`
	Overall     float64 `json:"overall"`
}

// RiskLevel is the comparator's coarse risk classification of a PR.
type RiskLevel string

// Recognized risk levels.
const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// Metrics aggregates a comparison's counts and derived scores.
type Metrics struct {
	CountsByStatus   map[issue.Status]int   `json:"countsByStatus"`
	CountsBySeverity map[issue.Severity]int `json:"countsBySeverity"`
	CountsByCategory map[issue.Category]int `json:"countsByCategory"`
	CountsByTool     map[string]int         `json:"countsByTool"`
	Scores           Scores                 `json:"scores"`
	ImprovementRate  float64                `json:"improvementRate"`
	RiskLevel        RiskLevel              `json:"riskLevel"`
}

// Trends reports a coarse fix-velocity-vs-new-issue-rate trajectory.
type Trends struct {
	FixVelocity           int     `json:"fixVelocity"`
	NewIssueRate          int     `json:"newIssueRate"`
	ImprovementRate        float64 `json:"improvementRate"`
	EstimatedSprintsToZero float64 `json:"estimatedSprintsToZero,omitempty"`
}

// Result is a cached two-branch comparison.
type Result struct {
	NewIssues       []EnhancedIssue `json:"newIssues"`
	FixedIssues     []EnhancedIssue `json:"fixedIssues"`
	UnchangedIssues []EnhancedIssue `json:"unchangedIssues"`
	Metrics         Metrics         `json:"metrics"`
	Trends          Trends          `json:"trends"`
}

// Compare classifies every PR-side issue as new or unchanged against the
// main-side result, every unmatched main-side issue as fixed, and derives
// metrics/trends. The comparison result is cached at (repo, PR number) for
// five minutes.
func Compare(
	ctx context.Context,
	c *cache.Cache,
	repoURL string,
	prNumber int,
	mainResult, prResult *branchanalyzer.Result,
	dual *dualindex.Indices,
	opts Options,
) (*Result, error) {
	key := cache.Key{Kind: cache.KindComparison, Repo: repoURL, PRNumber: prNumber}

	if c != nil {
		var cached Result
		if cache.GetTyped(ctx, c, key, &cached) {
			return &cached, nil
		}
	}

	threshold := opts.MatchThreshold
	if threshold <= 0 {
		threshold = defaultMatchThreshold
	}

	mainIssues := branchanalyzer.Dedup(mainResult.Issues)
	prIssues := branchanalyzer.Dedup(prResult.Issues)

	matchedMain := make([]bool, len(mainIssues))

	var newIssues, unchangedIssues []EnhancedIssue

	for _, prIssue := range prIssues {
		bestIdx := -1
		bestConfidence := -1
		bestType := matcher.TypeNone

		for i, mainIssue := range mainIssues {
			if matchedMain[i] {
				continue
			}

			result := bestAttempt(dual, mainIssue, prIssue)
			if !result.IsMatch || result.Confidence < threshold {
				continue
			}

			if result.Confidence > bestConfidence {
				bestConfidence = result.Confidence
				bestIdx = i
				bestType = result.Type
			}
		}

		if bestIdx >= 0 {
			matchedMain[bestIdx] = true

			if opts.IncludeUnchanged {
				unchangedIssues = append(unchangedIssues, enhanceUnchanged(prIssue, bestConfidence, bestType))
			}

			continue
		}

		newIssues = append(newIssues, enhanceNew(prIssue))
	}

	var fixedIssues []EnhancedIssue

	for i, mainIssue := range mainIssues {
		if matchedMain[i] {
			continue
		}

		fixedIssues = append(fixedIssues, enhanceFixed(mainIssue))
	}

	metrics := computeMetrics(newIssues, fixedIssues, unchangedIssues)
	trends := computeTrends(newIssues, fixedIssues)

	result := &Result{
		NewIssues:       newIssues,
		FixedIssues:     fixedIssues,
		UnchangedIssues: unchangedIssues,
		Metrics:         metrics,
		Trends:          trends,
	}

	if c != nil {
		_ = cache.PutTyped(ctx, c, key, result, cacheTTL)
	}

	return result, nil
}

// bestAttempt invokes the file-move matcher when the dual indices record
// that the PR issue's file is a move destination whose source is the main
// issue's file; otherwise it invokes the standard matcher.
func bestAttempt(dual *dualindex.Indices, mainIssue, prIssue issue.ToolIssue) matcher.Result {
	if dual != nil {
		for from, to := range dual.Diff.Moved {
			if from == mainIssue.File && to == prIssue.File {
				return matcher.MatchWithFileMovement(mainIssue, prIssue, from, to)
			}
		}
	}

	return matcher.Match(mainIssue, prIssue)
}

func enhanceNew(i issue.ToolIssue) EnhancedIssue {
	e := EnhancedIssue{ToolIssue: i, Status: issue.StatusNew}

	switch {
	case i.Severity == issue.SeverityCritical:
		e.Impact = ImpactBreaking
	case i.Severity == issue.SeverityHigh || i.Category == issue.CategorySecurity:
		e.Impact = ImpactDegrading
	default:
		e.Impact = ImpactMinor
	}

	e.RequiresAction = i.Severity == issue.SeverityCritical || i.Severity == issue.SeverityHigh
	e.BlocksPR = i.Severity == issue.SeverityCritical

	e.Priority = priority(i)
	e.EstimatedEffort = estimatedEffort(i)

	return e
}

var fixCredit = map[issue.Severity]float64{
	issue.SeverityCritical: 10,
	issue.SeverityHigh:     5,
	issue.SeverityMedium:   3,
	issue.SeverityLow:      1,
	issue.SeverityInfo:     0.5,
}

func enhanceFixed(i issue.ToolIssue) EnhancedIssue {
	e := EnhancedIssue{ToolIssue: i, Status: issue.StatusFixed}
	e.Credit = fixCredit[i.Severity]
	e.Priority = priority(i)
	e.EstimatedEffort = estimatedEffort(i)

	return e
}

func enhanceUnchanged(i issue.ToolIssue, confidence int, matchType matcher.MatchType) EnhancedIssue {
	e := EnhancedIssue{ToolIssue: i, Status: issue.StatusUnchanged, Confidence: confidence, MatchType: matchType}
	e.OccurrenceCount = 1
	e.Priority = priority(i)
	e.EstimatedEffort = estimatedEffort(i)

	return e
}

var categoryPriorityBonus = map[issue.Category]int{
	issue.CategorySecurity:     20,
	issue.CategoryPerformance:  10,
	issue.CategoryDependency:   15,
	issue.CategoryQuality:      5,
	issue.CategoryArchitecture: 5,
}

func priority(i issue.ToolIssue) int {
	return i.Severity.PriorityBase() + categoryPriorityBonus[i.Category]
}

func estimatedEffort(i issue.ToolIssue) EstimatedEffort {
	switch {
	case i.Severity == issue.SeverityCritical || i.Category == issue.CategoryArchitecture:
		return EffortDays
	case i.Severity == issue.SeverityHigh || i.Category == issue.CategorySecurity:
		return EffortHours
	default:
		return EffortMinutes
	}
}

func computeMetrics(newIssues, fixedIssues, unchangedIssues []EnhancedIssue) Metrics {
	m := Metrics{
		CountsByStatus:   map[issue.Status]int{},
		CountsBySeverity: map[issue.Severity]int{},
		CountsByCategory: map[issue.Category]int{},
		CountsByTool:     map[string]int{},
	}

	all := append(append(append([]EnhancedIssue{}, newIssues...), fixedIssues...), unchangedIssues...)

	for _, e := range all {
		m.CountsByStatus[e.Status]++
		m.CountsBySeverity[e.Severity]++
		m.CountsByCategory[e.Category]++
		m.CountsByTool[e.Tool]++
	}

	m.Scores = computeScores(newIssues)

	if len(fixedIssues) > 0 {
		m.ImprovementRate = float64(len(fixedIssues)-len(newIssues)) / float64(len(fixedIssues))
	}

	m.RiskLevel = riskLevel(newIssues)

	return m
}

func computeScores(newIssues []EnhancedIssue) Scores {
	securityDeduction, qualityDeduction, performanceDeduction := 0.0, 0.0, 0.0

	for _, e := range newIssues {
		deduction := severityDeduction(e.Severity)

		switch e.Category {
		case issue.CategorySecurity:
			securityDeduction += deduction
		case issue.CategoryPerformance:
			performanceDeduction += deduction
		default:
			qualityDeduction += deduction
		}
	}

	scores := Scores{
		Security:    clampScore(100 - securityDeduction),
		Quality:     clampScore(100 - qualityDeduction),
		Performance: clampScore(100 - performanceDeduction),
	}
	scores.Overall = 0.4*scores.Security + 0.4*scores.Quality + 0.2*scores.Performance

	return scores
}

func severityDeduction(s issue.Severity) float64 {
	switch s {
	case issue.SeverityCritical:
		return 30
	case issue.SeverityHigh:
		return 15
	case issue.SeverityMedium:
		return 7
	case issue.SeverityLow:
		return 3
	default:
		return 1
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 100 {
		return 100
	}

	return v
}

func riskLevel(newIssues []EnhancedIssue) RiskLevel {
	var critical, high, medium int

	for _, e := range newIssues {
		switch e.Severity {
		case issue.SeverityCritical:
			critical++
		case issue.SeverityHigh:
			high++
		case issue.SeverityMedium:
			medium++
		}
	}

	switch {
	case critical > 0:
		return RiskCritical
	case high > 2:
		return RiskHigh
	case high > 0 || medium > 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

func computeTrends(newIssues, fixedIssues []EnhancedIssue) Trends {
	t := Trends{
		FixVelocity:  len(fixedIssues),
		NewIssueRate: len(newIssues),
	}

	if len(fixedIssues) > 0 {
		t.ImprovementRate = float64(len(fixedIssues)-len(newIssues)) / float64(len(fixedIssues))
	}

	if t.FixVelocity > t.NewIssueRate && t.NewIssueRate >= 0 {
		net := t.FixVelocity - t.NewIssueRate
		if net > 0 {
			t.EstimatedSprintsToZero = float64(t.NewIssueRate) / float64(net)
		}
	}

	return t
}
