package anyvcs

import (
	"fmt"
	"slices"
)

// commitGraph is the parent-lookup capability the generic history algorithms
// operate on. Revisions are canonical identifiers; parents are ordered with
// the mainline parent first. The graph is never materialized: traversal is
// lazy with visited-set bookkeeping sized to the working frontier.
type commitGraph interface {
	parentRevs(rev string) ([]string, error)
}

// changedLister extends commitGraph with per-revision changed paths, enough
// to reconstruct a path's history on backends without a native path-scoped
// log.
type changedLister interface {
	commitGraph
	changedPaths(rev string) ([]FileChangeInfo, error)
}

type graphMark struct {
	depth       int
	firstParent bool
}

// commonAncestor finds the most recent common ancestor of revA and revB by
// backward breadth-first traversal from both revisions, stopping at the
// first generation where the frontiers intersect. Among equidistant
// candidates, those reachable first-parent-only from both inputs are
// preferred; remaining ties break on lexicographic identifier order, so the
// result is stable across runs.
func commonAncestor(g commitGraph, revA, revB string) (string, error) {
	visitedA := map[string]graphMark{revA: {firstParent: true}}
	visitedB := map[string]graphMark{revB: {firstParent: true}}
	frontA := []string{revA}
	frontB := []string{revB}

	for len(frontA) > 0 || len(frontB) > 0 {
		if rev, ok := pickAncestor(visitedA, visitedB); ok {
			return rev, nil
		}
		var err error
		frontA, err = expandFrontier(g, frontA, visitedA)
		if err != nil {
			return "", err
		}
		frontB, err = expandFrontier(g, frontB, visitedB)
		if err != nil {
			return "", err
		}
	}
	if rev, ok := pickAncestor(visitedA, visitedB); ok {
		return rev, nil
	}
	return "", fmt.Errorf("%s, %s: %w", revA, revB, ErrNoCommonAncestor)
}

func expandFrontier(g commitGraph, front []string, visited map[string]graphMark) ([]string, error) {
	var next []string
	for _, rev := range front {
		mark := visited[rev]
		parents, err := g.parentRevs(rev)
		if err != nil {
			return nil, err
		}
		for i, parent := range parents {
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = graphMark{
				depth:       mark.depth + 1,
				firstParent: mark.firstParent && i == 0,
			}
			next = append(next, parent)
		}
	}
	return next, nil
}

func pickAncestor(visitedA, visitedB map[string]graphMark) (string, bool) {
	var candidates []string
	for rev := range visitedA {
		if _, ok := visitedB[rev]; ok {
			candidates = append(candidates, rev)
		}
	}
	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0], true
	}
	// Prefer ancestors on the mainline of both inputs.
	var mainline []string
	for _, rev := range candidates {
		if visitedA[rev].firstParent && visitedB[rev].firstParent {
			mainline = append(mainline, rev)
		}
	}
	if len(mainline) > 0 {
		candidates = mainline
	}
	return slices.Min(candidates), true
}

// pathRev is one step in the history of a path: the revision that touched it
// and the path's name at that revision (copies and renames shift the name).
type pathRev struct {
	Rev  string
	Path string
}

// pathHistoryByGraph reconstructs a path's history, newest first, by walking
// the first-parent chain from rev and keeping revisions whose changed paths
// touch it. This is the required fallback for backends without a native
// path-scoped history command, and the substrate of the fallback blame
// engine. limit <= 0 means unlimited.
func pathHistoryByGraph(g changedLister, rev, path string, limit int) ([]pathRev, error) {
	var results []pathRev
	cur := rev
	for cur != "" {
		changes, err := g.changedPaths(cur)
		if err != nil {
			return nil, err
		}
		if change, ok := touchesPath(changes, path); ok {
			results = append(results, pathRev{Rev: cur, Path: path})
			if limit > 0 && len(results) >= limit {
				return results, nil
			}
			if change.Kind == ChangeCopied && change.CopyFrom != "" {
				path = change.CopyFrom
			} else if change.Kind == ChangeAdded {
				return results, nil
			}
		}
		parents, err := g.parentRevs(cur)
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			break
		}
		cur = parents[0]
	}
	return results, nil
}

func touchesPath(changes []FileChangeInfo, path string) (FileChangeInfo, bool) {
	prefix := path + "/"
	for _, c := range changes {
		if c.Path == path || len(c.Path) > len(prefix) && c.Path[:len(prefix)] == prefix {
			return c, true
		}
	}
	return FileChangeInfo{}, false
}
