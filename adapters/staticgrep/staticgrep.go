// Package staticgrep is an illustrative tool adapter that scans file
// contents for a configurable set of regex-based findings (hardcoded
// secrets, debug leftovers), without shelling out to any external binary.
package staticgrep

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/lindara-dev/prdiff/pkg/issue"
)

// Rule is one pattern this adapter scans for.
type Rule struct {
	ID         string
	Pattern    *regexp.Regexp
	Message    string
	Category   issue.Category
	Severity   issue.Severity
	Extensions map[string]bool // nil matches any extension
}

// DefaultRules covers a small set of illustrative findings.
var DefaultRules = []Rule{
	{
		ID:       "SG-SECRET-001",
		Pattern:  regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*[:=]\s*["'][^"']{8,}["']`),
		Message:  "possible hardcoded credential",
		Category: issue.CategorySecurity,
		Severity: issue.SeverityHigh,
	},
	{
		ID:       "SG-DEBUG-001",
		Pattern:  regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b`),
		Message:  "unresolved marker left in code",
		Category: issue.CategoryQuality,
		Severity: issue.SeverityLow,
	},
}

// Adapter scans file contents against Rules.
type Adapter struct {
	Rules []Rule
}

// New returns a staticgrep Adapter configured with DefaultRules.
func New() Adapter {
	return Adapter{Rules: DefaultRules}
}

// Name implements issue.Adapter.
func (Adapter) Name() string { return "staticgrep" }

// Version implements issue.Adapter. The rule set is embedded, not queried.
func (Adapter) Version(context.Context) string { return "1.0.0" }

// Categories implements issue.Adapter.
func (a Adapter) Categories() []issue.Category {
	seen := map[issue.Category]bool{}

	var categories []issue.Category

	for _, r := range a.Rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			categories = append(categories, r.Category)
		}
	}

	return categories
}

// SelectsFile implements issue.Adapter: staticgrep operates on any text
// file, so it accepts everything the indexer already let through.
func (Adapter) SelectsFile(string, string) bool { return true }

// Invoke scans each file in filePaths line by line against every rule.
func (a Adapter) Invoke(ctx context.Context, workingTreePath string, filePaths []string) ([]issue.ToolIssue, error) {
	var issues []issue.ToolIssue

	for _, rel := range filePaths {
		if ctx.Err() != nil {
			return issues, ctx.Err()
		}

		found, err := a.scanFile(workingTreePath, rel)
		if err != nil {
			continue // unreadable files are skipped, never fatal
		}

		issues = append(issues, found...)
	}

	return issues, nil
}

func (a Adapter) scanFile(root, rel string) ([]issue.ToolIssue, error) {
	f, err := os.Open(filepath.Join(root, rel)) //nolint:gosec // path comes from our own file index
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var found []issue.ToolIssue

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		for _, rule := range a.Rules {
			if rule.Extensions != nil && !rule.Extensions[filepath.Ext(rel)] {
				continue
			}

			if !rule.Pattern.MatchString(line) {
				continue
			}

			found = append(found, issue.ToolIssue{
				Tool:        "staticgrep",
				ToolVersion: "1.0.0",
				RuleID:      rule.ID,
				Category:    rule.Category,
				Severity:    rule.Severity,
				File:        rel,
				StartLine:   lineNo,
				Message:     rule.Message,
				CodeSnippet: line,
				Confidence:  0.6,
			}.WithFingerprint())
		}
	}

	return found, scanner.Err()
}
