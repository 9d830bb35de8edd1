// Package repomanager owns working-tree lifecycle: cloning the target and
// PR branches into isolated temporary directories, fetching PR refs,
// resolving commit hashes, and total cleanup across every directory a
// Manager instance created.
package repomanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lindara-dev/prdiff/internal/gitwire"
)

// defaultTargetBranch is used when prepareForPR is not given one.
const defaultTargetBranch = "main"

var (
	// ErrNonEmptyDir is returned when Clone is asked to clone into a
	// directory that already has entries.
	ErrNonEmptyDir = errors.New("repomanager: target directory is not empty")

	// ErrCloneTimeout is returned when a clone does not finish within its
	// configured timeout.
	ErrCloneTimeout = errors.New("repomanager: clone timed out")

	// ErrPRRefFetchFailed is returned when fetching a PR's head ref fails.
	ErrPRRefFetchFailed = errors.New("repomanager: PR ref fetch failed")
)

// WorkingTree is a filesystem checkout of one commit of one branch, owned
// by the Manager that created it.
type WorkingTree struct {
	RepoURL string
	Branch  string
	Path    string
}

// CloneOptions configures a single clone operation.
type CloneOptions struct {
	ShallowDepth int
	SingleBranch bool
	Quiet        bool
	Timeout      time.Duration
}

// Manager clones, checks out, and cleans up working trees for one analysis
// run. Every directory it creates lives under one process-owned base
// directory and is tracked so cleanupAll is total even after a partial
// failure.
type Manager struct {
	executor *gitwire.Executor
	baseDir  string

	cloneTimeout      time.Duration
	prRefFetchTimeout time.Duration
	shallowDepth      int

	mu   sync.Mutex
	dirs []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithCloneTimeout sets the default clone timeout (spec default 5 min).
func WithCloneTimeout(d time.Duration) Option {
	return func(m *Manager) { m.cloneTimeout = d }
}

// WithPRRefFetchTimeout sets the default PR-ref fetch timeout (spec
// default 1 min).
func WithPRRefFetchTimeout(d time.Duration) Option {
	return func(m *Manager) { m.prRefFetchTimeout = d }
}

// WithShallowDepth sets the default shallow-clone depth.
func WithShallowDepth(depth int) Option {
	return func(m *Manager) { m.shallowDepth = depth }
}

// WithExecutor overrides the git executor (for tests).
func WithExecutor(e *gitwire.Executor) Option {
	return func(m *Manager) { m.executor = e }
}

// New creates a Manager rooted at baseDir. baseDir is created if missing.
func New(baseDir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("repomanager: create base dir: %w", err)
	}

	m := &Manager{
		executor:          gitwire.NewExecutor(),
		baseDir:           baseDir,
		cloneTimeout:      5 * time.Minute,
		prRefFetchTimeout: time.Minute,
		shallowDepth:      1,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Clone clones repoURL (optionally at branch) into a fresh temporary
// directory under the Manager's base directory. On any failure the
// directory is removed.
func (m *Manager) Clone(ctx context.Context, repoURL, branch string, opts CloneOptions) (*WorkingTree, error) {
	if err := gitwire.SanitizeRepoURL(repoURL); err != nil {
		return nil, fmt.Errorf("repomanager: %w", err)
	}

	dir, err := m.newDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNonEmptyDir, dir)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.cloneTimeout
	}

	args := []string{"clone"}

	depth := opts.ShallowDepth
	if depth <= 0 {
		depth = m.shallowDepth
	}

	if depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", depth))
	}

	if opts.SingleBranch {
		args = append(args, "--single-branch")
	}

	if opts.Quiet {
		args = append(args, "--quiet")
	}

	if branch != "" {
		args = append(args, "--branch", branch)
	}

	args = append(args, repoURL, dir)

	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := m.executor.Run(cloneCtx, "", args...); err != nil {
		m.removeDir(dir)

		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrCloneTimeout, repoURL)
		}

		return nil, fmt.Errorf("repomanager: clone %s: %w", repoURL, err)
	}

	tree := &WorkingTree{RepoURL: repoURL, Branch: branch, Path: dir}

	hash, err := m.GetCommitHash(ctx, tree)
	if err != nil {
		m.removeDir(dir)

		return nil, fmt.Errorf("repomanager: resolve HEAD after clone: %w", err)
	}

	_ = hash

	return tree, nil
}

// PrepareForPR produces two isolated working trees: a shallow clone of
// targetBranch (defaulting to "main"), and an independent clone with the
// PR's head ref fetched and checked out as a local branch named "pr-<n>".
func (m *Manager) PrepareForPR(ctx context.Context, repoURL string, prNumber int, targetBranch string) (main, pr *WorkingTree, err error) {
	if targetBranch == "" {
		targetBranch = defaultTargetBranch
	}

	mainTree, err := m.Clone(ctx, repoURL, targetBranch, CloneOptions{SingleBranch: true, Quiet: true})
	if err != nil {
		return nil, nil, err
	}

	prTree, err := m.Clone(ctx, repoURL, targetBranch, CloneOptions{SingleBranch: true, Quiet: true})
	if err != nil {
		m.removeDir(mainTree.Path)

		return nil, nil, err
	}

	localBranch := fmt.Sprintf("pr-%d", prNumber)
	headRef := fmt.Sprintf("pull/%d/head", prNumber)

	fetchCtx, cancel := context.WithTimeout(ctx, m.prRefFetchTimeout)
	defer cancel()

	_, fetchErr := m.executor.Run(fetchCtx, prTree.Path, "fetch", "origin",
		fmt.Sprintf("%s:%s", headRef, localBranch))
	if fetchErr != nil {
		m.removeDir(mainTree.Path)
		m.removeDir(prTree.Path)

		return nil, nil, fmt.Errorf("%w: PR #%d: %v", ErrPRRefFetchFailed, prNumber, fetchErr)
	}

	if err := m.Checkout(ctx, prTree, localBranch); err != nil {
		m.removeDir(mainTree.Path)
		m.removeDir(prTree.Path)

		return nil, nil, err
	}

	prTree.Branch = localBranch

	return mainTree, prTree, nil
}

// Checkout switches tree to branch.
func (m *Manager) Checkout(ctx context.Context, tree *WorkingTree, branch string) error {
	if err := gitwire.SanitizeBranchName(branch); err != nil {
		return fmt.Errorf("repomanager: %w", err)
	}

	if _, err := m.executor.Run(ctx, tree.Path, "checkout", branch); err != nil {
		return fmt.Errorf("repomanager: checkout %s: %w", branch, err)
	}

	tree.Branch = branch

	return nil
}

// GetChangedFiles returns the set of paths that differ between base and
// head within tree, via a native name-only diff.
func (m *Manager) GetChangedFiles(ctx context.Context, tree *WorkingTree, base, head string) ([]string, error) {
	lines, err := m.executor.RunLines(ctx, tree.Path, "diff", "--name-only", base, head)
	if err != nil {
		return nil, fmt.Errorf("repomanager: diff %s..%s: %w", base, head, err)
	}

	return lines, nil
}

// GetCommitHash resolves tree's current HEAD commit hash.
func (m *Manager) GetCommitHash(ctx context.Context, tree *WorkingTree) (string, error) {
	hash, err := m.executor.RunOutput(ctx, tree.Path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("repomanager: resolve HEAD: %w", err)
	}

	return hash, nil
}

// CleanupAll removes every directory this Manager created, regardless of
// whether the corresponding operation succeeded.
func (m *Manager) CleanupAll() error {
	m.mu.Lock()
	dirs := m.dirs
	m.dirs = nil
	m.mu.Unlock()

	var errs []error

	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) newDir() (string, error) {
	dir := filepath.Join(m.baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("repomanager: create working dir: %w", err)
	}

	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()

	return dir, nil
}

func (m *Manager) removeDir(dir string) {
	_ = os.RemoveAll(dir)
}
