// Package cache provides the two-tier (distributed + in-process) cache used
// at every pipeline stage boundary: a typed key space, per-kind TTLs, and
// optional payload compression.
package cache

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the category of artifact a Key addresses. Each Kind has a
// fixed TTL (see ttl.go).
type Kind string

// Artifact kinds, matching the cache key schema.
const (
	KindBranch     Kind = "branch"
	KindTool       Kind = "tool"
	KindComparison Kind = "comparison"
	KindFile       Kind = "file"
	KindRepo       Kind = "repo"
	KindIssues     Kind = "issues"
	KindContext    Kind = "context"
	KindChat       Kind = "chat"
)

// keyPrefix namespaces every key this package mints, so the cache backend
// can be shared with unrelated subsystems without collision.
const keyPrefix = "prdiff"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Key is a typed, colon-joined cache key:
//
//	<prefix>:<normalized-repo>:<kind>:<branch>?:<tool>?:<pr-number>?:<content-hash-prefix>?
//
// The normalized repo comes immediately after the fixed prefix, ahead of
// kind, so that every key belonging to a repository — regardless of kind —
// shares a single literal prefix; invalidateRepo depends on this ordering.
// Empty optional segments are omitted entirely rather than left blank, so
// "repo:branch" and "repo:branch:" never collide.
type Key struct {
	Kind              Kind
	Repo              string
	Branch            string
	Tool              string
	PRNumber          int // 0 means absent
	ContentHashPrefix string
}

// String renders the key in its canonical, sanitized form.
func (k Key) String() string {
	parts := []string{keyPrefix, sanitizeRepo(NormalizeRepo(k.Repo)), string(k.Kind)}

	if k.Branch != "" {
		parts = append(parts, sanitizeSegment(k.Branch))
	}

	if k.Tool != "" {
		parts = append(parts, sanitizeSegment(k.Tool))
	}

	if k.PRNumber != 0 {
		parts = append(parts, strconv.Itoa(k.PRNumber))
	}

	if k.ContentHashPrefix != "" {
		parts = append(parts, sanitizeSegment(k.ContentHashPrefix))
	}

	return strings.Join(parts, ":")
}

// PrefixForRepo returns the key-prefix used by invalidateRepo: every key
// whose normalized-repo segment equals this one shares this prefix,
// regardless of kind.
func PrefixForRepo(repoURL string) string {
	return strings.Join([]string{keyPrefix, sanitizeRepo(NormalizeRepo(repoURL))}, ":") + ":"
}

// sanitizeRepo applies sanitizeSegment to each ":"-separated part of a
// normalized repo, keeping the ":" separators NormalizeRepo introduced.
func sanitizeRepo(normalized string) string {
	parts := strings.Split(normalized, ":")
	for i, p := range parts {
		parts[i] = sanitizeSegment(p)
	}

	return strings.Join(parts, ":")
}

// sanitizeSegment restricts a key segment to [A-Za-z0-9_-], as required for
// any part that can carry user-supplied text (repo URLs, branch names, tool
// names).
func sanitizeSegment(s string) string {
	return unsafeKeyChars.ReplaceAllString(s, "_")
}

// NormalizeRepo lowercases a repository URL, strips its scheme and trailing
// ".git", and substitutes "/" with ":" so "https://GitHub.com/Foo/Bar.git"
// and "foo/bar" both normalize to "github.com:foo:bar"-shaped keys when the
// host is included, or "foo:bar" for the shorthand form.
func NormalizeRepo(repoURL string) string {
	s := strings.ToLower(strings.TrimSpace(repoURL))

	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		s = strings.TrimPrefix(s, scheme)
	}

	s = strings.TrimSuffix(s, ".git")
	s = strings.Trim(s, "/")
	s = strings.ReplaceAll(s, "/", ":")

	return s
}
