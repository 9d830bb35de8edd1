// Package fileindex walks one working tree and builds a repository index:
// the file set, per-file metadata, content hashes, and the language/
// extension lookup maps the rest of the pipeline needs for O(1) access.
package fileindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/lindara-dev/prdiff/pkg/cache"
)

// unknownCommitHash disables cache-validity checks: every subsequent
// lookup misses, matching the spec's stated behavior for trees without
// resolvable Git metadata.
const unknownCommitHash = "unknown"

// DefaultMaxFileSize is the default per-file size cap (1 MiB); larger
// files are skipped entirely.
const DefaultMaxFileSize = 1 << 20

// indexCacheTTL is fixed at one hour for repository indices, per this
// component's own contract — distinct from the general "repo metadata"
// TTL the cache package's Kind table otherwise uses for KindRepo.
const indexCacheTTL = time.Hour

// blockedDirs are directory names skipped during the walk regardless of
// depth.
var blockedDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "dist": true, "build": true,
	"target": true, "out": true, ".git": true, ".svn": true, ".hg": true,
	"vendor": true, "venv": true, "coverage": true,
}

// FileMetadata is the per-file record within a RepositoryIndex.
type FileMetadata struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"sizeBytes"`
	LineCount    int       `json:"lineCount"`
	ContentHash  string    `json:"contentHash"`
	Extension    string    `json:"extension"`
	Language     string    `json:"language"`
	LastModified time.Time `json:"lastModified"`
}

// Stats aggregates a RepositoryIndex's counters.
type Stats struct {
	FileCount     int            `json:"fileCount"`
	TotalLines    int            `json:"totalLines"`
	TotalBytes    int64          `json:"totalBytes"`
	PerLanguage   map[string]int `json:"perLanguage"`
	BuildDuration time.Duration  `json:"buildDuration"`
}

// RepositoryIndex is a per-branch snapshot of one working tree.
type RepositoryIndex struct {
	RepoURL    string                  `json:"repoURL"`
	Branch     string                  `json:"branch"`
	CommitHash string                  `json:"commitHash"`
	IndexedAt  time.Time               `json:"indexedAt"`
	Paths      []string                `json:"paths"`
	Metadata   map[string]FileMetadata `json:"metadata"`
	ByHash     map[string]string       `json:"byHash"` // path -> content hash, mirrors Metadata for O(1) lookup
	ByExt      map[string][]string     `json:"byExt"`
	ByLanguage map[string][]string     `json:"byLanguage"`
	Stats      Stats                   `json:"stats"`
}

// Options configures a single BuildIndex call.
type Options struct {
	MaxFileSize       int64
	AllowedExtensions map[string]bool // nil means the package default set

	// IgnorePatterns are doublestar glob patterns (relative to the
	// working-tree root, e.g. "**/*_generated.go" or "testdata/**")
	// matched against each candidate file's slash-normalized relative
	// path. A matching file is skipped regardless of AllowedExtensions.
	IgnorePatterns []string
}

func matchesAnyIgnorePattern(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}

	return false
}

// BuildIndex walks path (a working-tree root) and returns its
// RepositoryIndex. If cache is non-nil, a cached index is returned when its
// CommitHash matches commitHash; otherwise a fresh index is built and
// written back with a one-hour TTL.
func BuildIndex(
	ctx context.Context,
	c *cache.Cache,
	path, repoURL, branch, commitHash string,
	opts Options,
) (*RepositoryIndex, error) {
	key := cache.Key{Kind: cache.KindRepo, Repo: repoURL, Branch: branch}

	if c != nil && commitHash != unknownCommitHash {
		var cached RepositoryIndex
		if cache.GetTyped(ctx, c, key, &cached) && cached.CommitHash == commitHash {
			return &cached, nil
		}
	}

	index, err := build(path, repoURL, branch, commitHash, opts)
	if err != nil {
		return nil, err
	}

	if c != nil {
		_ = cache.PutTyped(ctx, c, key, index, indexCacheTTL)
	}

	return index, nil
}

func build(root, repoURL, branch, commitHash string, opts Options) (*RepositoryIndex, error) {
	start := time.Now()

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	allowed := opts.AllowedExtensions
	if allowed == nil {
		allowed = defaultAllowedExtensions
	}

	index := &RepositoryIndex{
		RepoURL:    repoURL,
		Branch:     branch,
		CommitHash: commitHash,
		Metadata:   make(map[string]FileMetadata),
		ByHash:     make(map[string]string),
		ByExt:      make(map[string][]string),
		ByLanguage: make(map[string][]string),
		Stats:      Stats{PerLanguage: make(map[string]int)},
	}

	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, never fatal
		}

		name := d.Name()

		if d.IsDir() {
			if name != "." && (strings.HasPrefix(name, ".") || blockedDirs[name]) {
				return filepath.SkipDir
			}

			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !allowed[ext] {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}

		rel = filepath.ToSlash(rel)

		if matchesAnyIgnorePattern(opts.IgnorePatterns, rel) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}

		if info.Size() > maxSize {
			return nil
		}

		meta, readErr := indexFile(p, rel, ext, info.Size(), info.ModTime())
		if readErr != nil {
			return nil
		}

		index.Paths = append(index.Paths, rel)
		index.Metadata[rel] = meta
		index.ByHash[rel] = meta.ContentHash
		index.ByExt[ext] = append(index.ByExt[ext], rel)
		index.ByLanguage[meta.Language] = append(index.ByLanguage[meta.Language], rel)

		index.Stats.FileCount++
		index.Stats.TotalLines += meta.LineCount
		index.Stats.TotalBytes += meta.SizeBytes
		index.Stats.PerLanguage[meta.Language]++

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("fileindex: walk %s: %w", root, walkErr)
	}

	sort.Strings(index.Paths)

	for ext := range index.ByExt {
		sort.Strings(index.ByExt[ext])
	}

	for lang := range index.ByLanguage {
		sort.Strings(index.ByLanguage[lang])
	}

	index.Stats.BuildDuration = time.Since(start)
	index.IndexedAt = time.Now()

	return index, nil
}

func indexFile(absPath, relPath, ext string, size int64, modTime time.Time) (FileMetadata, error) {
	data, err := os.ReadFile(absPath) //nolint:gosec // path is produced by our own bounded walk
	if err != nil {
		return FileMetadata{}, fmt.Errorf("read %s: %w", relPath, err)
	}

	lineCount := countLines(data)

	var hashBuf [8]byte
	binary.BigEndian.PutUint64(hashBuf[:], xxhash.Sum64(data))
	hash := hex.EncodeToString(hashBuf[:])

	return FileMetadata{
		Path:         relPath,
		SizeBytes:    size,
		LineCount:    lineCount,
		ContentHash:  hash,
		Extension:    ext,
		Language:     languageForContent(ext, data),
		LastModified: modTime,
	}, nil
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)

	count := 0
	for scanner.Scan() {
		count++
	}

	return count
}
