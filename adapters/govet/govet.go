// Package govet adapts Go's own "go vet" as a tool adapter: it shells out
// per invocation and translates its stderr diagnostics into canonical
// issues.
package govet

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/lindara-dev/prdiff/pkg/issue"
)

// Adapter runs "go vet ./..." inside a working tree.
type Adapter struct{}

// New returns a govet Adapter.
func New() Adapter { return Adapter{} }

// Name implements issue.Adapter.
func (Adapter) Name() string { return "govet" }

// Version shells out to "go version" rather than embedding a constant, so
// reports reflect the toolchain actually installed on the runner.
func (Adapter) Version(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "go", "version").Output()
	if err != nil {
		return "unknown"
	}

	return strings.TrimSpace(string(out))
}

// Categories implements issue.Adapter.
func (Adapter) Categories() []issue.Category {
	return []issue.Category{issue.CategoryQuality, issue.CategoryArchitecture}
}

// SelectsFile implements issue.Adapter. go vet operates per-package, not
// per-file, so this simply gates the tool on Go being present at all.
func (Adapter) SelectsFile(_, language string) bool {
	return language == "Go"
}

// Invoke runs "go vet ./..." in workingTreePath. go vet reports diagnostics
// on stderr in "path:line:col: message" form, one per line.
func (a Adapter) Invoke(ctx context.Context, workingTreePath string, filePaths []string) ([]issue.ToolIssue, error) {
	if len(filePaths) == 0 {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "go", "vet", "./...")
	cmd.Dir = workingTreePath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	_ = cmd.Run() // go vet exits non-zero whenever it reports anything; errors are parsed, not propagated

	version := a.Version(ctx)

	var issues []issue.ToolIssue

	for _, line := range strings.Split(stderr.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		file, lineNo, col, message, ok := parseVetLine(line)
		if !ok {
			continue
		}

		issues = append(issues, issue.ToolIssue{
			Tool:        "govet",
			ToolVersion: version,
			RuleID:      "govet",
			Category:    issue.CategoryQuality,
			Severity:    issue.SeverityMedium,
			File:        file,
			StartLine:   lineNo,
			StartColumn: col,
			Message:     message,
			Confidence:  0.9,
		}.WithFingerprint())
	}

	return issues, nil
}

// parseVetLine splits a "path:line:col: message" diagnostic. col is 0 if
// go vet did not report a column.
func parseVetLine(line string) (file string, lineNo, col int, message string, ok bool) {
	parts := strings.SplitN(line, ": ", 2)
	if len(parts) != 2 {
		return "", 0, 0, "", false
	}

	location, message := parts[0], parts[1]

	segs := strings.Split(location, ":")
	if len(segs) < 2 {
		return "", 0, 0, "", false
	}

	file = segs[0]

	lineNo, err := strconv.Atoi(segs[1])
	if err != nil {
		return "", 0, 0, "", false
	}

	if len(segs) >= 3 {
		col, _ = strconv.Atoi(segs[2]) //nolint:errcheck // absent/invalid column defaults to 0
	}

	return file, lineNo, col, message, true
}
