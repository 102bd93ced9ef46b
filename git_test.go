package anyvcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// testGitRepo builds a worktree repository with go-git and returns the
// commit hashes it created, oldest first.
func testGitRepo(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gitlib.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := func(minute int) *object.Signature {
		return &object.Signature{
			Name:  "Alice",
			Email: "alice@example.com",
			When:  time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC),
		}
	}
	commit := func(minute int, message string, files map[string]string) string {
		for name, content := range files {
			p := filepath.Join(dir, name)
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o777))
			require.NoError(t, os.WriteFile(p, []byte(content), 0o666))
			_, err := wt.Add(name)
			require.NoError(t, err)
		}
		hash, err := wt.Commit(message, &gitlib.CommitOptions{
			Author: sig(minute), Committer: sig(minute),
		})
		require.NoError(t, err)
		return hash.String()
	}

	var hashes []string
	hashes = append(hashes, commit(0, "add hello", map[string]string{
		"hello.txt": "hello\nworld\n",
	}))
	hashes = append(hashes, commit(1, "add docs", map[string]string{
		"docs/readme.md": "readme\n",
	}))
	hashes = append(hashes, commit(2, "edit hello", map[string]string{
		"hello.txt": "hello\nthere\nworld\n",
	}))
	return dir, hashes
}

func TestGitResolve(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()
	require.Equal(t, Git, repo.Kind())

	tip := hashes[len(hashes)-1]

	canon, err := repo.CanonicalRev(tip)
	require.NoError(t, err)
	require.Equal(t, tip, canon)

	canon, err = repo.CanonicalRev(tip[:8])
	require.NoError(t, err)
	require.Equal(t, tip, canon)

	canon, err = repo.CanonicalRev("master")
	require.NoError(t, err)
	require.Equal(t, tip, canon)

	_, err = repo.CanonicalRev("no-such-branch")
	require.ErrorIs(t, err, ErrUnknownRevision)

	ok, err := repo.Contains(tip)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Contains("feedface")
	require.NoError(t, err)
	require.False(t, ok)

	tipRev, err := repo.Tip("master")
	require.NoError(t, err)
	require.Equal(t, tip, tipRev)
}

func TestGitEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := Create(dir, Git, nil)
	require.NoError(t, err)
	defer repo.Close()

	empty, err := repo.Empty()
	require.NoError(t, err)
	require.True(t, empty)

	count, err := repo.CommitCount()
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = repo.CanonicalRev("HEAD")
	require.ErrorIs(t, err, ErrEmptyRepository)

	ok, err := repo.Contains("HEAD")
	require.NoError(t, err)
	require.False(t, ok)

	log, err := repo.Log(LogOptions{})
	require.NoError(t, err)
	require.Empty(t, log)
}

func TestGitLsAndCat(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()
	tip := hashes[2]

	entries, err := repo.Ls(tip, "/", LsOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	require.Equal(t, TypeDir, byPath["docs"].Type)
	require.Equal(t, TypeFile, byPath["hello.txt"].Type)

	entries, err = repo.Ls(tip, "/", LsOptions{Recursive: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = repo.Ls(tip, "/", LsOptions{Recursive: true, RecursiveDirs: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	entries, err = repo.Ls(tip, "docs", LsOptions{Directory: true, Report: ReportCommit})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, TypeDir, entries[0].Type)
	require.Equal(t, hashes[1], entries[0].Commit)

	entries, err = repo.Ls(tip, "hello.txt", LsOptions{Report: ReportSize})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(len("hello\nthere\nworld\n")), entries[0].Size)

	_, err = repo.Ls(tip, "hello.txt/", LsOptions{})
	require.ErrorIs(t, err, ErrPathNotFound)

	_, err = repo.Ls(tip, "missing", LsOptions{})
	require.ErrorIs(t, err, ErrPathNotFound)

	data, err := repo.Cat(tip, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello\nthere\nworld\n", string(data))

	_, err = repo.Cat(tip, "docs")
	require.ErrorIs(t, err, ErrBadFileType)

	_, err = repo.ReadLink(tip, "hello.txt")
	require.ErrorIs(t, err, ErrBadFileType)
}

func TestGitHistory(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()
	tip := hashes[2]

	count, err := repo.CommitCount()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	log, err := repo.Log(LogOptions{To: tip})
	require.NoError(t, err)
	require.Len(t, log, 3)
	require.Equal(t, tip, log[0].Rev)
	require.Equal(t, "edit hello", log[0].Subject())
	require.Equal(t, hashes[0], log[2].Rev)

	log, err = repo.Log(LogOptions{To: tip, Limit: 1})
	require.NoError(t, err)
	require.Len(t, log, 1)

	log, err = repo.Log(LogOptions{From: hashes[0], To: tip})
	require.NoError(t, err)
	require.Len(t, log, 2)

	log, err = repo.Log(LogOptions{To: tip, Path: "docs"})
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, hashes[1], log[0].Rev)

	entry, err := repo.LogEntry(hashes[1])
	require.NoError(t, err)
	require.Equal(t, "add docs", entry.Subject())
	require.Equal(t, "Alice <alice@example.com>", entry.Author)
	require.Equal(t, []string{hashes[0]}, entry.Parents)

	parents, err := repo.Parents(hashes[0])
	require.NoError(t, err)
	require.Empty(t, parents)
}

func TestGitChangedAndDiff(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()

	changed, err := repo.Changed(hashes[0])
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, FileChangeInfo{Path: "hello.txt", Kind: ChangeAdded}, changed[0])

	changed, err = repo.Changed(hashes[2])
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, ChangeModified, changed[0].Kind)

	diff, err := repo.ParentDiff(hashes[2])
	require.NoError(t, err)
	require.Contains(t, diff, "+there")

	diff, err = repo.ParentDiff(hashes[0])
	require.NoError(t, err)
	require.Contains(t, diff, "+hello")

	diff, err = repo.Diff(hashes[0], hashes[2], "")
	require.NoError(t, err)
	require.Contains(t, diff, "+there")
	require.Contains(t, diff, "readme")

	diff, err = repo.Diff(hashes[0], hashes[2], "hello.txt")
	require.NoError(t, err)
	require.Contains(t, diff, "+there")
	require.NotContains(t, diff, "readme")
}

func TestGitLogFollowsRenames(t *testing.T) {
	dir, hashes := testGitRepo(t)
	gr, err := gitlib.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := gr.Worktree()
	require.NoError(t, err)
	_, err = wt.Move("hello.txt", "greeting.txt")
	require.NoError(t, err)
	sig := &object.Signature{
		Name:  "Alice",
		Email: "alice@example.com",
		When:  time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC),
	}
	renamed, err := wt.Commit("rename hello", &gitlib.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()

	changed, err := repo.Changed(renamed.String())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, ChangeCopied, changed[0].Kind)
	require.Equal(t, "greeting.txt", changed[0].Path)
	require.Equal(t, "hello.txt", changed[0].CopyFrom)

	log, err := repo.Log(LogOptions{To: renamed.String(), Path: "greeting.txt", Follow: true})
	require.NoError(t, err)
	require.Len(t, log, 3)
	require.Equal(t, renamed.String(), log[0].Rev)
	require.Equal(t, hashes[2], log[1].Rev)
	require.Equal(t, hashes[0], log[2].Rev)

	log, err = repo.Log(LogOptions{To: renamed.String(), Path: "greeting.txt"})
	require.NoError(t, err)
	require.Len(t, log, 1)
}

func TestGitAncestorAndBlame(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()

	ancestor, err := repo.Ancestor(hashes[2], hashes[1])
	require.NoError(t, err)
	require.Equal(t, hashes[1], ancestor)

	blame, err := repo.Blame(hashes[2], "hello.txt")
	require.NoError(t, err)
	require.Len(t, blame, 3)
	require.Equal(t, hashes[0], blame[0].Rev)
	require.Equal(t, hashes[2], blame[1].Rev)
	require.Equal(t, "there", blame[1].Line)
	require.Equal(t, hashes[0], blame[2].Rev)

	_, err = repo.Blame(hashes[2], "missing")
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestGitHandleSeesNewCommits(t *testing.T) {
	dir, hashes := testGitRepo(t)
	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()

	count, err := repo.CommitCount()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	tip, err := repo.CanonicalRev("master")
	require.NoError(t, err)
	require.Equal(t, hashes[2], tip)

	// Commit through a second handle; the open handle must not serve stale
	// aggregates or token resolutions.
	gr, err := gitlib.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := gr.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("extra\n"), 0o666))
	_, err = wt.Add("extra.txt")
	require.NoError(t, err)
	sig := &object.Signature{
		Name:  "Alice",
		Email: "alice@example.com",
		When:  time.Date(2024, 3, 1, 10, 4, 0, 0, time.UTC),
	}
	newTip, err := wt.Commit("add extra", &gitlib.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	count, err = repo.CommitCount()
	require.NoError(t, err)
	require.Equal(t, 4, count)

	tip, err = repo.CanonicalRev("master")
	require.NoError(t, err)
	require.Equal(t, newTip.String(), tip)
}

func TestGitMergeFirstParent(t *testing.T) {
	dir := t.TempDir()
	gr, err := gitlib.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := gr.Worktree()
	require.NoError(t, err)

	sig := func(minute int) *object.Signature {
		return &object.Signature{
			Name:  "Alice",
			Email: "alice@example.com",
			When:  time.Date(2024, 3, 1, 11, minute, 0, 0, time.UTC),
		}
	}
	commit := func(minute int, message, name, content string) string {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o666))
		_, err := wt.Add(name)
		require.NoError(t, err)
		hash, err := wt.Commit(message, &gitlib.CommitOptions{
			Author: sig(minute), Committer: sig(minute),
		})
		require.NoError(t, err)
		return hash.String()
	}

	base := commit(0, "add shared", "shared.txt", "shared\n")
	require.NoError(t, wt.Checkout(&gitlib.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("side"),
		Create: true,
	}))
	side := commit(1, "add side", "side.txt", "side change\n")
	require.NoError(t, wt.Checkout(&gitlib.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("master"),
	}))
	mainline := commit(2, "add main", "main.txt", "main change\n")

	// Merge commit: mainline tree plus the side branch's file, with the
	// mainline parent first.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "side.txt"), []byte("side change\n"), 0o666))
	_, err = wt.Add("side.txt")
	require.NoError(t, err)
	mergeHash, err := wt.Commit("merge side", &gitlib.CommitOptions{
		Author:    sig(3),
		Committer: sig(3),
		Parents:   []plumbing.Hash{plumbing.NewHash(mainline), plumbing.NewHash(side)},
	})
	require.NoError(t, err)
	merge := mergeHash.String()

	repo, err := Open(dir, nil)
	require.NoError(t, err)
	defer repo.Close()

	parents, err := repo.Parents(merge)
	require.NoError(t, err)
	require.Equal(t, []string{mainline, side}, parents)

	// Changed reflects only the diff against the first parent, not the
	// union of both parent diffs.
	changed, err := repo.Changed(merge)
	require.NoError(t, err)
	require.Equal(t, []FileChangeInfo{{Path: "side.txt", Kind: ChangeAdded}}, changed)

	diff, err := repo.ParentDiff(merge)
	require.NoError(t, err)
	require.Contains(t, diff, "+side change")
	require.NotContains(t, diff, "main change")

	log, err := repo.Log(LogOptions{To: merge, Merges: MergesOnly})
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, merge, log[0].Rev)

	log, err = repo.Log(LogOptions{To: merge, Merges: MergesNone})
	require.NoError(t, err)
	require.Len(t, log, 3)
	for _, entry := range log {
		require.NotEqual(t, merge, entry.Rev)
	}

	ancestor, err := repo.Ancestor(mainline, side)
	require.NoError(t, err)
	require.Equal(t, base, ancestor)
}

func TestGitOpenRejectsNonRepository(t *testing.T) {
	_, err := OpenVCS(t.TempDir(), Git, nil)
	require.ErrorIs(t, err, ErrNotRepository)
}
