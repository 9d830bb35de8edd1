// Package dualindex builds the pair of per-branch repository indices plus
// the derived branch diff and cross-reference that cross-branch issue
// matching relies on: added/removed/modified/unchanged file sets, and
// content-hash–based move detection.
package dualindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/lindara-dev/prdiff/pkg/cache"
	"github.com/lindara-dev/prdiff/pkg/fileindex"
)

// cacheTTL is fixed at 30 minutes for dual-branch diffs, per this
// component's own contract.
const cacheTTL = 30 * time.Minute

// DiffStatus classifies a path's membership in the branch diff.
type DiffStatus string

// Recognized statuses.
const (
	StatusAdded     DiffStatus = "added"
	StatusRemoved   DiffStatus = "removed"
	StatusModified  DiffStatus = "modified"
	StatusUnchanged DiffStatus = "unchanged"
	StatusMoved     DiffStatus = "moved"
)

// CrossRefEntry is one per-path record in the cross-reference.
type CrossRefEntry struct {
	MainPath   string     `json:"mainPath,omitempty"`
	PRPath     string     `json:"prPath,omitempty"`
	Status     DiffStatus `json:"status"`
	Similarity int        `json:"similarity,omitempty"`
}

// Diff is the derived comparison of two repository indices.
type Diff struct {
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	Modified  []string          `json:"modified"`
	Unchanged []string          `json:"unchanged"`
	Moved     map[string]string `json:"moved"` // mainPath -> prPath
	CrossRefs []CrossRefEntry   `json:"crossRefs"`

	AddedLines       int `json:"addedLines"`
	RemovedLines     int `json:"removedLines"`
	ModifiedFiles    int `json:"modifiedFiles"`
	TotalChangeCount int `json:"totalChangeCount"`
	ImpactScore      int `json:"impactScore"`
}

// Indices is the pair of single-branch indices plus their derived Diff.
type Indices struct {
	Main *fileindex.RepositoryIndex `json:"main"`
	PR   *fileindex.RepositoryIndex `json:"pr"`
	Diff Diff                       `json:"diff"`
}

// WorkingTree is the minimal shape dualindex needs from a repomanager tree.
type WorkingTree struct {
	Path       string
	Branch     string
	CommitHash string
}

// Build builds the dual indices for mainTree/prTree, in parallel, using a
// cached result when both per-branch HEADs still match the cached indices'
// commit hashes.
func Build(
	ctx context.Context,
	c *cache.Cache,
	repoURL string,
	mainTree, prTree WorkingTree,
	opts fileindex.Options,
) (*Indices, error) {
	key := cache.Key{Kind: cache.KindRepo, Repo: repoURL, Branch: mainTree.Branch + "-vs-" + prTree.Branch}

	if c != nil {
		var cached Indices
		if cache.GetTyped(ctx, c, key, &cached) &&
			cached.Main != nil && cached.PR != nil &&
			cached.Main.CommitHash == mainTree.CommitHash &&
			cached.PR.CommitHash == prTree.CommitHash {
			return &cached, nil
		}
	}

	var mainIdx, prIdx *fileindex.RepositoryIndex

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		idx, err := fileindex.BuildIndex(gctx, c, mainTree.Path, repoURL, mainTree.Branch, mainTree.CommitHash, opts)
		if err != nil {
			return fmt.Errorf("dualindex: build main index: %w", err)
		}

		mainIdx = idx

		return nil
	})
	group.Go(func() error {
		idx, err := fileindex.BuildIndex(gctx, c, prTree.Path, repoURL, prTree.Branch, prTree.CommitHash, opts)
		if err != nil {
			return fmt.Errorf("dualindex: build pr index: %w", err)
		}

		prIdx = idx

		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	diff := diffIndices(mainIdx, prIdx, mainTree.Path, prTree.Path)

	result := &Indices{Main: mainIdx, PR: prIdx, Diff: diff}

	if c != nil {
		_ = cache.PutTyped(ctx, c, key, result, cacheTTL)
	}

	return result, nil
}

func diffIndices(main, pr *fileindex.RepositoryIndex, mainRoot, prRoot string) Diff {
	// Secondary map: contentHash -> [paths in main], in stable path order so
	// duplicate-content ties resolve deterministically (first encountered in
	// sorted-path walk order).
	hashToMainPaths := make(map[string][]string)

	mainPaths := append([]string(nil), main.Paths...)
	sort.Strings(mainPaths)

	for _, p := range mainPaths {
		hash := main.Metadata[p].ContentHash
		hashToMainPaths[hash] = append(hashToMainPaths[hash], p)
	}

	diff := Diff{Moved: make(map[string]string)}
	moveSources := make(map[string]bool)
	moveDestinations := make(map[string]bool)

	prPaths := append([]string(nil), pr.Paths...)
	sort.Strings(prPaths)

	for _, prPath := range prPaths {
		prMeta := pr.Metadata[prPath]

		mainMeta, inMain := main.Metadata[prPath]
		if !inMain {
			if movedFrom, ok := findMoveSource(hashToMainPaths, prMeta.ContentHash, moveSources, pr); ok {
				diff.Moved[movedFrom] = prPath
				moveSources[movedFrom] = true
				moveDestinations[prPath] = true

				continue
			}

			diff.Added = append(diff.Added, prPath)
			diff.AddedLines += prMeta.LineCount

			continue
		}

		if mainMeta.ContentHash == prMeta.ContentHash {
			diff.Unchanged = append(diff.Unchanged, prPath)

			continue
		}

		diff.Modified = append(diff.Modified, prPath)
		diff.ModifiedFiles++

		lineDelta := prMeta.LineCount - mainMeta.LineCount
		if lineDelta > 0 {
			diff.AddedLines += lineDelta
		} else if lineDelta < 0 {
			diff.RemovedLines += -lineDelta
		}
	}

	for _, mainPath := range mainPaths {
		if moveSources[mainPath] {
			continue
		}

		if _, inPR := pr.Metadata[mainPath]; inPR {
			continue
		}

		diff.Removed = append(diff.Removed, mainPath)
		diff.RemovedLines += main.Metadata[mainPath].LineCount
	}

	diff.CrossRefs = buildCrossRefs(diff, mainRoot, prRoot)
	diff.TotalChangeCount = len(diff.Added) + len(diff.Removed) + len(diff.Modified) + len(diff.Moved)
	diff.ImpactScore = impactScore(diff, len(mainPaths), len(prPaths))

	return diff
}

// findMoveSource looks up prHash in the secondary map and returns the first
// unmatched main path with that hash that is not also present in the PR
// tree (i.e. genuinely vanished from its original location), in the
// stable sorted-path order the map was built in.
func findMoveSource(hashToMainPaths map[string][]string, prHash string, taken map[string]bool, pr *fileindex.RepositoryIndex) (string, bool) {
	for _, candidate := range hashToMainPaths[prHash] {
		if taken[candidate] {
			continue
		}

		if _, stillInPR := pr.Metadata[candidate]; stillInPR {
			continue
		}

		return candidate, true
	}

	return "", false
}

func buildCrossRefs(diff Diff, mainRoot, prRoot string) []CrossRefEntry {
	var refs []CrossRefEntry

	for _, p := range diff.Added {
		refs = append(refs, CrossRefEntry{PRPath: p, Status: StatusAdded})
	}

	for _, p := range diff.Removed {
		refs = append(refs, CrossRefEntry{MainPath: p, Status: StatusRemoved})
	}

	for _, p := range diff.Modified {
		refs = append(refs, CrossRefEntry{
			MainPath: p, PRPath: p, Status: StatusModified,
			Similarity: textSimilarity(mainRoot, prRoot, p),
		})
	}

	for _, p := range diff.Unchanged {
		refs = append(refs, CrossRefEntry{MainPath: p, PRPath: p, Status: StatusUnchanged})
	}

	movedFrom := make([]string, 0, len(diff.Moved))
	for from := range diff.Moved {
		movedFrom = append(movedFrom, from)
	}

	sort.Strings(movedFrom)

	for _, from := range movedFrom {
		to := diff.Moved[from]
		refs = append(refs,
			CrossRefEntry{MainPath: from, PRPath: to, Status: StatusMoved, Similarity: 100},
		)
	}

	return refs
}

// textSimilarity reads path from both working-tree roots and returns a
// 0-100 similarity score derived from their Levenshtein edit distance, via
// the same diff engine used by line-oriented text diff tools. If either
// side cannot be read (for example, it is missing), the score falls back
// to 0: "no basis for a similarity claim", not "identical" or "totally
// dissimilar". Binary and large files are read and scored like any other.
func textSimilarity(mainRoot, prRoot, relPath string) int {
	mainContent, mainErr := os.ReadFile(filepath.Join(mainRoot, relPath))
	prContent, prErr := os.ReadFile(filepath.Join(prRoot, relPath))

	if mainErr != nil || prErr != nil {
		return 0
	}

	maxLen := len(mainContent)
	if len(prContent) > maxLen {
		maxLen = len(prContent)
	}

	if maxLen == 0 {
		return 100
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(mainContent), string(prContent), false)
	distance := dmp.DiffLevenshtein(diffs)

	similarity := 100 * (1 - float64(distance)/float64(maxLen))
	if similarity < 0 {
		similarity = 0
	}

	return int(similarity)
}

// impactScore implements min(100, 100*(0.3*|added|+0.5*|removed|+0.4*|modified|+0.1*|moved|) / max(1, mainFileCount+prFileCount)).
func impactScore(diff Diff, mainFileCount, prFileCount int) int {
	weighted := 0.3*float64(len(diff.Added)) +
		0.5*float64(len(diff.Removed)) +
		0.4*float64(len(diff.Modified)) +
		0.1*float64(len(diff.Moved))

	denom := mainFileCount + prFileCount
	if denom < 1 {
		denom = 1
	}

	score := 100 * weighted / float64(denom)
	if score > 100 {
		score = 100
	}

	return int(score + 0.5)
}
