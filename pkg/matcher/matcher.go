// Package matcher implements the cross-branch issue-matching strategies: a
// layered cascade (exact, line-shift, content, fuzzy) that tolerates line
// shifts, refactors, and file moves when comparing two branches' issues.
package matcher

import (
	"math"
	"regexp"
	"strings"

	"github.com/lindara-dev/prdiff/pkg/issue"
)

// MatchType names which strategy produced a Result.
type MatchType string

// Recognized match types, in the order strategies are tried.
const (
	TypeNone      MatchType = "none"
	TypeExact     MatchType = "exact"
	TypeLineShift MatchType = "line-shift"
	TypeContent   MatchType = "content"
	TypeFuzzy     MatchType = "fuzzy"
	TypeMoved     MatchType = "moved"
)

// Thresholds and weights are implementation constants, test-locked per the
// matching contract; do not tune without updating the corresponding tests.
const (
	lineShiftMaxDelta = 10

	codeSimilarityThreshold    = 0.80
	messageSimilarityThreshold = 0.80
	fuzzySimilarityThreshold   = 0.60

	fuzzyWeightRuleID   = 0.3
	fuzzyWeightCategory = 0.2
	fuzzyWeightSeverity = 0.1
	fuzzyWeightMessage  = 0.4

	movedHighConfidence      = 95
	movedSimilarityThreshold = 0.70
	movedModerateConfidence  = 80
)

// Result is the outcome of a single match attempt.
type Result struct {
	IsMatch    bool
	Confidence int
	Type       MatchType
}

var noMatch = Result{Type: TypeNone}

// Match runs the layered cascade against a and b, first strategy to
// succeed wins. Matching is symmetric: Match(a, b) == Match(b, a).
func Match(a, b issue.ToolIssue) Result {
	if r, ok := matchExact(a, b); ok {
		return r
	}

	if r, ok := matchLineShift(a, b); ok {
		return r
	}

	if r, ok := matchContent(a, b); ok {
		return r
	}

	if r, ok := matchFuzzy(a, b); ok {
		return r
	}

	return noMatch
}

// MatchWithFileMovement is invoked by the comparator when the cross-reference
// records that oldPath moved to newPath: a.File == oldPath and b.File ==
// newPath are the expected inputs.
func MatchWithFileMovement(a, b issue.ToolIssue, oldPath, newPath string) Result {
	if a.File != oldPath || b.File != newPath || a.RuleID != b.RuleID {
		return noMatch
	}

	if normalizeMessage(a.Message) == normalizeMessage(b.Message) {
		return Result{IsMatch: true, Confidence: movedHighConfidence, Type: TypeMoved}
	}

	if messageSimilarity(a.Message, b.Message) >= movedSimilarityThreshold {
		return Result{IsMatch: true, Confidence: movedModerateConfidence, Type: TypeMoved}
	}

	return noMatch
}

func matchExact(a, b issue.ToolIssue) (Result, bool) {
	if a.File == b.File && a.StartLine == b.StartLine && a.RuleID == b.RuleID {
		return Result{IsMatch: true, Confidence: 100, Type: TypeExact}, true
	}

	return noMatch, false
}

func matchLineShift(a, b issue.ToolIssue) (Result, bool) {
	if a.File != b.File || a.RuleID != b.RuleID {
		return noMatch, false
	}

	delta := a.StartLine - b.StartLine
	if delta < 0 {
		delta = -delta
	}

	if delta == 0 || delta > lineShiftMaxDelta {
		return noMatch, false
	}

	return Result{IsMatch: true, Confidence: 90 - 2*delta, Type: TypeLineShift}, true
}

func matchContent(a, b issue.ToolIssue) (Result, bool) {
	if a.RuleID != b.RuleID || a.Category != b.Category {
		return noMatch, false
	}

	if a.CodeSnippet != "" && b.CodeSnippet != "" {
		sim := codeSimilarity(a.CodeSnippet, b.CodeSnippet)
		if sim >= codeSimilarityThreshold {
			return Result{IsMatch: true, Confidence: round(sim * 80), Type: TypeContent}, true
		}
	}

	sim := messageSimilarity(a.Message, b.Message)
	if sim >= messageSimilarityThreshold {
		return Result{IsMatch: true, Confidence: round(sim * 70), Type: TypeContent}, true
	}

	return noMatch, false
}

func matchFuzzy(a, b issue.ToolIssue) (Result, bool) {
	score := 0.0

	if a.RuleID == b.RuleID {
		score += fuzzyWeightRuleID
	}

	if a.Category == b.Category {
		score += fuzzyWeightCategory
	}

	if a.Severity == b.Severity {
		score += fuzzyWeightSeverity
	}

	score += fuzzyWeightMessage * messageSimilarity(a.Message, b.Message)

	if score >= fuzzySimilarityThreshold {
		return Result{IsMatch: true, Confidence: round(score * 60), Type: TypeFuzzy}, true
	}

	return noMatch, false
}

func round(f float64) int {
	return int(math.Round(f))
}

var whitespaceRun = regexp.MustCompile(`\s+`)
var codeStripChars = regexp.MustCompile(`[{}()]`)

// messageSimilarity: whitespace-split, lowercase, Jaccard of token sets.
func messageSimilarity(a, b string) float64 {
	return jaccard(strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b)))
}

// codeSimilarity: whitespace-normalized, {()}-stripped, lowercase, tokenized
// Jaccard.
func codeSimilarity(a, b string) float64 {
	normalize := func(s string) []string {
		s = whitespaceRun.ReplaceAllString(s, " ")
		s = codeStripChars.ReplaceAllString(s, "")
		s = strings.ToLower(s)

		return strings.Fields(s)
	}

	return jaccard(normalize(a), normalize(b))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	setA := make(map[string]bool, len(a))
	for _, tok := range a {
		setA[tok] = true
	}

	setB := make(map[string]bool, len(b))
	for _, tok := range b {
		setB[tok] = true
	}

	intersection := 0

	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}

	maxLen := len(setA)
	if len(setB) > maxLen {
		maxLen = len(setB)
	}

	if maxLen == 0 {
		return 0
	}

	return float64(intersection) / float64(maxLen)
}

func normalizeMessage(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
