package gitwire

import (
	"fmt"
	"regexp"
	"strings"
)

// dangerousPatterns catch shell metacharacters, NUL and line breaks that have
// no legitimate place in a git argument (".." path components are not among
// them), even though exec.CommandContext
// never invokes a shell — defense in depth against a future refactor that
// does.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[;&|><$]`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`"),
	regexp.MustCompile(`\x00`),
	regexp.MustCompile(`\r|\n`),
}

// SanitizeArgs rejects any argument containing a dangerous pattern and
// trims the rest.
func SanitizeArgs(args []string) ([]string, error) {
	sanitized := make([]string, 0, len(args))

	for i, arg := range args {
		for _, pattern := range dangerousPatterns {
			if pattern.MatchString(arg) {
				return nil, fmt.Errorf("argument %d contains a disallowed character: %q", i, arg)
			}
		}

		sanitized = append(sanitized, strings.TrimSpace(arg))
	}

	return sanitized, nil
}

// SanitizeRepoURL rejects a repository URL with shell metacharacters or an
// unsupported scheme.
func SanitizeRepoURL(repoURL string) error {
	if repoURL == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(repoURL) {
			return fmt.Errorf("repository URL contains a disallowed character")
		}
	}

	validPrefixes := []string{"https://", "http://", "ssh://", "git://", "git@"}

	for _, prefix := range validPrefixes {
		if strings.HasPrefix(repoURL, prefix) {
			return nil
		}
	}

	// Bare "<owner>/<repo>" shorthand is resolved to a GitHub HTTPS URL by
	// the caller before reaching the executor, so anything else is
	// rejected here.
	return fmt.Errorf("repository URL has an unsupported scheme: %s", repoURL)
}

// SanitizeBranchName rejects a branch name containing git-reserved
// characters.
func SanitizeBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}

	invalid := []*regexp.Regexp{
		regexp.MustCompile(`^\.`),
		regexp.MustCompile(`\.\.`),
		regexp.MustCompile(`[~^:?*\[\]\\]`),
		regexp.MustCompile(`\s`),
		regexp.MustCompile(`^/|/$`),
		regexp.MustCompile(`\.lock$`),
	}

	for _, pattern := range invalid {
		if pattern.MatchString(name) {
			return fmt.Errorf("branch name %q contains an invalid pattern", name)
		}
	}

	return nil
}
