package anyvcs

import (
	"errors"
	"testing"
)

type fakeGraph map[string][]string

func (g fakeGraph) parentRevs(rev string) ([]string, error) {
	return g[rev], nil
}

func TestCommonAncestorLinear(t *testing.T) {
	g := fakeGraph{
		"c3": {"c2"},
		"c2": {"c1"},
		"c1": nil,
	}
	got, err := commonAncestor(g, "c3", "c1")
	if err != nil {
		t.Fatalf("commonAncestor returned error: %v", err)
	}
	if got != "c1" {
		t.Fatalf("ancestor of c3 and c1 should be c1, got %s", got)
	}
}

func TestCommonAncestorSameRev(t *testing.T) {
	g := fakeGraph{"c1": nil}
	got, err := commonAncestor(g, "c1", "c1")
	if err != nil {
		t.Fatalf("commonAncestor returned error: %v", err)
	}
	if got != "c1" {
		t.Fatalf("ancestor of a revision with itself should be itself, got %s", got)
	}
}

func TestCommonAncestorDiamond(t *testing.T) {
	g := fakeGraph{
		"left":  {"root"},
		"right": {"root"},
		"root":  nil,
	}
	for _, pair := range [][2]string{{"left", "right"}, {"right", "left"}} {
		got, err := commonAncestor(g, pair[0], pair[1])
		if err != nil {
			t.Fatalf("commonAncestor(%s, %s) returned error: %v", pair[0], pair[1], err)
		}
		if got != "root" {
			t.Fatalf("commonAncestor(%s, %s) = %s, want root", pair[0], pair[1], got)
		}
	}
}

func TestCommonAncestorPrefersMainline(t *testing.T) {
	// Both inputs see "zz" on the first-parent chain and "aa" only through a
	// second parent; mainline wins even though "aa" sorts lower.
	g := fakeGraph{
		"x":  {"zz", "aa"},
		"y":  {"zz", "aa"},
		"zz": nil,
		"aa": nil,
	}
	got, err := commonAncestor(g, "x", "y")
	if err != nil {
		t.Fatalf("commonAncestor returned error: %v", err)
	}
	if got != "zz" {
		t.Fatalf("mainline candidate should win, got %s", got)
	}
}

func TestCommonAncestorLexicographicTieBreak(t *testing.T) {
	// The shared candidates are all off-mainline, so the identifier order
	// decides, deterministically.
	g := fakeGraph{
		"x":  {"m1", "zz", "aa"},
		"y":  {"m2", "zz", "aa"},
		"m1": nil,
		"m2": nil,
		"zz": nil,
		"aa": nil,
	}
	got, err := commonAncestor(g, "x", "y")
	if err != nil {
		t.Fatalf("commonAncestor returned error: %v", err)
	}
	if got != "aa" {
		t.Fatalf("lexicographic tie-break should pick aa, got %s", got)
	}
}

func TestCommonAncestorDisjoint(t *testing.T) {
	g := fakeGraph{
		"a": nil,
		"b": nil,
	}
	_, err := commonAncestor(g, "a", "b")
	if !errors.Is(err, ErrNoCommonAncestor) {
		t.Fatalf("disjoint histories should fail with ErrNoCommonAncestor, got %v", err)
	}
}

type fakeChangedGraph struct {
	fakeGraph
	changes map[string][]FileChangeInfo
}

func (g fakeChangedGraph) changedPaths(rev string) ([]FileChangeInfo, error) {
	return g.changes[rev], nil
}

func TestPathHistoryFollowsCopies(t *testing.T) {
	g := fakeChangedGraph{
		fakeGraph: fakeGraph{
			"c3": {"c2"},
			"c2": {"c1"},
			"c1": {"c0"},
			"c0": nil,
		},
		changes: map[string][]FileChangeInfo{
			"c3": {{Path: "f", Kind: ChangeModified}},
			"c2": {{Path: "f", Kind: ChangeCopied, CopyFrom: "g"}},
			"c1": {{Path: "g", Kind: ChangeAdded}},
			"c0": {{Path: "other", Kind: ChangeAdded}},
		},
	}
	history, err := pathHistoryByGraph(g, "c3", "f", 0)
	if err != nil {
		t.Fatalf("pathHistoryByGraph returned error: %v", err)
	}
	want := []pathRev{
		{Rev: "c3", Path: "f"},
		{Rev: "c2", Path: "f"},
		{Rev: "c1", Path: "g"},
	}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d (%v)", len(history), len(want), history)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("history[%d] = %v, want %v", i, history[i], want[i])
		}
	}
}

func TestPathHistorySkipsUnrelatedRevisions(t *testing.T) {
	g := fakeChangedGraph{
		fakeGraph: fakeGraph{
			"c2": {"c1"},
			"c1": {"c0"},
			"c0": nil,
		},
		changes: map[string][]FileChangeInfo{
			"c2": {{Path: "other", Kind: ChangeModified}},
			"c1": {{Path: "f", Kind: ChangeAdded}},
			"c0": {{Path: "boot", Kind: ChangeAdded}},
		},
	}
	history, err := pathHistoryByGraph(g, "c2", "f", 0)
	if err != nil {
		t.Fatalf("pathHistoryByGraph returned error: %v", err)
	}
	if len(history) != 1 || history[0].Rev != "c1" {
		t.Fatalf("history = %v, want single entry at c1", history)
	}
}

func TestPathHistoryLimit(t *testing.T) {
	g := fakeChangedGraph{
		fakeGraph: fakeGraph{
			"c3": {"c2"},
			"c2": {"c1"},
			"c1": nil,
		},
		changes: map[string][]FileChangeInfo{
			"c3": {{Path: "f", Kind: ChangeModified}},
			"c2": {{Path: "f", Kind: ChangeModified}},
			"c1": {{Path: "f", Kind: ChangeAdded}},
		},
	}
	history, err := pathHistoryByGraph(g, "c3", "f", 2)
	if err != nil {
		t.Fatalf("pathHistoryByGraph returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("limit 2 should cap history, got %v", history)
	}
}
