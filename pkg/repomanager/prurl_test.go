package repomanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/repomanager"
)

func TestParsePRURL_Valid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url   string
		owner string
		repo  string
		n     int
	}{
		{"https://github.com/foo/bar/pull/42", "foo", "bar", 42},
		{"https://github.com/foo/bar.git/pull/1", "foo", "bar", 1},
		{"https://github.com/foo/bar/pull/7/", "foo", "bar", 7},
	}

	for _, tc := range cases {
		ref, err := repomanager.ParsePRURL(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.owner, ref.Owner)
		assert.Equal(t, tc.repo, ref.Repo)
		assert.Equal(t, tc.n, ref.Number)
	}
}

func TestParsePRURL_Rejected(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"https://gitlab.com/foo/bar/pull/1",
		"https://github.com/foo/bar",
		"https://github.com/foo/bar/pull/abc",
		"not a url",
	}

	for _, url := range cases {
		_, err := repomanager.ParsePRURL(url)
		assert.ErrorIs(t, err, repomanager.ErrMalformedPRURL, url)
	}
}

func TestPRRef_Derived(t *testing.T) {
	t.Parallel()

	ref := repomanager.PRRef{Owner: "foo", Repo: "bar", Number: 42}
	assert.Equal(t, "https://github.com/foo/bar", ref.CloneURL())
	assert.Equal(t, "pull/42/head", ref.HeadRef())
	assert.Equal(t, "pr-42", ref.LocalBranch())
}

func TestParseRepoURL(t *testing.T) {
	t.Parallel()

	for _, url := range []string{
		"https://github.com/foo/bar",
		"https://github.com/foo/bar.git",
		"https://github.com/foo/bar/",
		"foo/bar",
	} {
		got, err := repomanager.ParseRepoURL(url)
		require.NoError(t, err, url)
		assert.Equal(t, "https://github.com/foo/bar", got)
	}

	_, err := repomanager.ParseRepoURL("not-a-repo-ref!!")
	assert.ErrorIs(t, err, repomanager.ErrMalformedRepoURL)
}
