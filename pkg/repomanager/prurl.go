package repomanager

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedPRURL is returned when a PR URL does not match any accepted
// form.
var ErrMalformedPRURL = errors.New("repomanager: malformed PR URL")

// ErrMalformedRepoURL is returned when a repository reference does not
// match any accepted form.
var ErrMalformedRepoURL = errors.New("repomanager: malformed repository URL")

var prURLPattern = regexp.MustCompile(
	`^https://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/pull/(\d+)/?$`,
)

var shorthandRepoPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?$`)

// PRRef identifies a pull request by owner, repository name, and number.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// CloneURL returns the HTTPS clone URL for the PR's repository.
func (r PRRef) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.Owner, r.Repo)
}

// HeadRef returns the remote ref GitHub exposes for this PR's head commit.
func (r PRRef) HeadRef() string {
	return fmt.Sprintf("pull/%d/head", r.Number)
}

// LocalBranch returns the local branch name the head ref is checked out to.
func (r PRRef) LocalBranch() string {
	return fmt.Sprintf("pr-%d", r.Number)
}

// ParsePRURL accepts "https://github.com/<owner>/<repo>/pull/<n>" (with or
// without a trailing ".git" on the repo segment or a trailing slash) and
// rejects anything else.
func ParsePRURL(raw string) (PRRef, error) {
	matches := prURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if matches == nil {
		return PRRef{}, fmt.Errorf("%w: %s", ErrMalformedPRURL, raw)
	}

	number, err := strconv.Atoi(matches[3])
	if err != nil {
		return PRRef{}, fmt.Errorf("%w: %s", ErrMalformedPRURL, raw)
	}

	return PRRef{Owner: matches[1], Repo: matches[2], Number: number}, nil
}

// ParseRepoURL accepts "https://github.com/<owner>/<repo>" (with or without
// a trailing ".git") or the "<owner>/<repo>" shorthand, normalizing both to
// the canonical HTTPS clone URL.
func ParseRepoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "https://github.com/") {
		rest := strings.TrimPrefix(raw, "https://github.com/")
		rest = strings.TrimSuffix(strings.TrimSuffix(rest, "/"), ".git")

		if !shorthandRepoPattern.MatchString(rest) {
			return "", fmt.Errorf("%w: %s", ErrMalformedRepoURL, raw)
		}

		return "https://github.com/" + rest, nil
	}

	if shorthandRepoPattern.MatchString(raw) {
		return "https://github.com/" + strings.TrimSuffix(raw, ".git"), nil
	}

	return "", fmt.Errorf("%w: %s", ErrMalformedRepoURL, raw)
}
