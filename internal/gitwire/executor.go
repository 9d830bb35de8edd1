// Package gitwire wraps the git CLI binary as an opaque subprocess
// dependency. It provides a safe, structured interface for executing git
// commands with input sanitization, timeout support, and typed error
// results, so the rest of the pipeline never shells out directly.
package gitwire

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// defaultTimeout bounds a git invocation when the caller supplies none.
const defaultTimeout = 5 * time.Minute

// Executor runs git commands against a working directory.
type Executor struct {
	gitBinary string
	env       []string
	timeout   time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithGitBinary overrides the git executable path (default "git", resolved
// via PATH).
func WithGitBinary(path string) Option {
	return func(e *Executor) { e.gitBinary = path }
}

// WithEnv appends environment variables to the inherited process environment
// for every command this Executor runs.
func WithEnv(env []string) Option {
	return func(e *Executor) { e.env = env }
}

// WithTimeout sets the default per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) { e.timeout = timeout }
}

// NewExecutor builds an Executor with the given options.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		gitBinary: "git",
		timeout:   defaultTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Result captures the outcome of a single git invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Run executes git with args in dir, honoring the Executor's timeout unless
// ctx carries an earlier deadline. Arguments are sanitized before exec to
// reject shell metacharacters, NUL and line breaks, even though exec.Command
// never invokes a shell; ".." path components are not checked.
func (e *Executor) Run(ctx context.Context, dir string, args ...string) (*Result, error) {
	start := time.Now()

	sanitized, err := SanitizeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("gitwire: sanitize args: %w", err)
	}

	runCtx := ctx

	if e.timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.gitBinary, sanitized...)
	cmd.Dir = dir
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if runErr != nil {
		result.ExitCode = -1
	}

	if runErr != nil {
		return result, &GitError{
			Command:  "git " + strings.Join(sanitized, " "),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Cause:    runErr,
		}
	}

	return result, nil
}

// RunOutput runs git and returns trimmed stdout, or a *GitError on a
// non-zero exit.
func (e *Executor) RunOutput(ctx context.Context, dir string, args ...string) (string, error) {
	result, err := e.Run(ctx, dir, args...)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(result.Stdout), nil
}

// RunLines runs git and splits stdout into non-empty, trimmed lines.
func (e *Executor) RunLines(ctx context.Context, dir string, args ...string) ([]string, error) {
	output, err := e.RunOutput(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	if output == "" {
		return nil, nil
	}

	rawLines := strings.Split(output, "\n")
	lines := make([]string, 0, len(rawLines))

	for _, line := range rawLines {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, nil
}

// GitError is returned whenever a git invocation exits non-zero or fails to
// start.
type GitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

// Error implements the error interface.
func (e *GitError) Error() string {
	msg := fmt.Sprintf("gitwire: %s (exit code %d)", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}

	return msg
}

// Unwrap exposes the underlying exec error.
func (e *GitError) Unwrap() error { return e.Cause }

// Is reports whether target is also a *GitError, for errors.Is callers that
// only care about the class of failure.
func (e *GitError) Is(target error) bool {
	_, ok := target.(*GitError)

	return ok
}
