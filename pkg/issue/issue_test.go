package issue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lindara-dev/prdiff/pkg/issue"
)

func TestNormalizeSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, issue.SeverityCritical, issue.NormalizeSeverity("CRITICAL"))
	assert.Equal(t, issue.SeverityHigh, issue.NormalizeSeverity("error"))
	assert.Equal(t, issue.SeverityLow, issue.NormalizeSeverity("totally-unknown"))
	assert.Equal(t, issue.SeverityLow, issue.NormalizeSeverity(""))
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	a := issue.Fingerprint("govet", "shadow", "main.go", 10, "Variable x shadows import")
	b := issue.Fingerprint("govet", "shadow", "main.go", 10, "variable X shadows import!!")

	assert.Equal(t, a, b, "normalization should make casing/punctuation irrelevant")

	c := issue.Fingerprint("govet", "shadow", "main.go", 11, "Variable x shadows import")
	assert.NotEqual(t, a, c, "different line should change the fingerprint")
}

func TestSplitLocation(t *testing.T) {
	t.Parallel()

	file, line, col, ok := issue.SplitLocation("pkg/foo.go:12:5")
	assert.True(t, ok)
	assert.Equal(t, "pkg/foo.go", file)
	assert.Equal(t, 12, line)
	assert.Equal(t, 5, col)

	_, _, _, ok = issue.SplitLocation("not-a-location")
	assert.False(t, ok)
}

func TestDetailScore_PrefersMoreDetail(t *testing.T) {
	t.Parallel()

	bare := issue.ToolIssue{Message: "short"}
	rich := issue.ToolIssue{Message: "short", CodeSnippet: "x := 1", Suggestion: "use y"}

	assert.Less(t, bare.DetailScore(), rich.DetailScore())
}

func TestSeverity_PriorityBase(t *testing.T) {
	t.Parallel()

	assert.Greater(t, issue.SeverityCritical.PriorityBase(), issue.SeverityHigh.PriorityBase())
	assert.Greater(t, issue.SeverityHigh.PriorityBase(), issue.SeverityMedium.PriorityBase())
}
