package anyvcs

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseHgLogRecord(t *testing.T) {
	record := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\x00" +
		"3:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb -1:0000000000000000000000000000000000000000\x00" +
		"1388577600 -3600\x00" +
		"Alice <alice@example.com>\x00" +
		"subject\n\tindented body"
	entry, err := parseHgLogRecord(record)
	if err != nil {
		t.Fatalf("parseHgLogRecord returned error: %v", err)
	}
	if entry.Rev != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("rev = %q", entry.Rev)
	}
	if len(entry.Parents) != 1 || entry.Parents[0] != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("null parent should be dropped: %v", entry.Parents)
	}
	if entry.Author != "Alice <alice@example.com>" {
		t.Errorf("author = %q", entry.Author)
	}
	if entry.Message != "subject\nindented body" {
		t.Errorf("tabindent not unfolded: %q", entry.Message)
	}
	if entry.Subject() != "subject" {
		t.Errorf("subject = %q", entry.Subject())
	}
	if !entry.Date.Equal(time.Unix(1388577600, 0)) {
		t.Errorf("date = %v", entry.Date)
	}
	_, offset := entry.Date.Zone()
	if offset != 3600 {
		t.Errorf("zone offset = %d, want 3600 (one hour east)", offset)
	}
}

func TestParseHgStatus(t *testing.T) {
	text := "M modified.txt\n" +
		"A added.txt\n" +
		"A copied.txt\n" +
		"  source.txt\n" +
		"R removed.txt\n"
	changes, err := parseHgStatus(text)
	if err != nil {
		t.Fatalf("parseHgStatus returned error: %v", err)
	}
	want := []FileChangeInfo{
		{Path: "modified.txt", Kind: ChangeModified},
		{Path: "added.txt", Kind: ChangeAdded},
		{Path: "copied.txt", Kind: ChangeCopied, CopyFrom: "source.txt"},
		{Path: "removed.txt", Kind: ChangeRemoved},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("changes[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestParseHgDate(t *testing.T) {
	date, err := parseHgDate("1388577600 0")
	if err != nil {
		t.Fatalf("parseHgDate returned error: %v", err)
	}
	if !date.Equal(time.Unix(1388577600, 0)) {
		t.Errorf("date = %v", date)
	}
	if _, err := parseHgDate("nonsense"); err == nil {
		t.Error("malformed input should fail")
	}
}

func TestParentDirs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"file", nil},
		{"a/file", []string{"a"}},
		{"a/b/c/file", []string{"a", "a/b", "a/b/c"}},
	}
	for _, tt := range tests {
		got := parentDirs(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parentDirs(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("parentDirs(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestClassifyHgResolveError(t *testing.T) {
	tests := []struct {
		stderr string
		want   error
	}{
		{"abort: ambiguous identifier: ab12!\n", ErrAmbiguousRevision},
		{"abort: unknown revision 'nope'!\n", ErrUnknownRevision},
		{"abort: empty revision set\n", ErrUnknownRevision},
		{"warning: ignoring unknown working parent\n", nil},
	}
	for _, tt := range tests {
		err := classifyHgResolveError("token", tt.stderr)
		if tt.want == nil {
			if err != nil {
				t.Errorf("classifyHgResolveError(%q) = %v, want nil", tt.stderr, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("classifyHgResolveError(%q) = %v, want %v", tt.stderr, err, tt.want)
		}
	}
}

// Integration tests below exec the real hg binary and are skipped when it is
// not installed.

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func runVCSCommand(t *testing.T, dir, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "HGUSER=Test User <test@example.com>")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s %v: %s", name, args, out)
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o777))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o666))
}

func TestHgIntegration(t *testing.T) {
	requireTool(t, "hg")
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "repo")

	repo, err := Create(repoDir, Hg, nil)
	require.NoError(t, err)
	defer repo.Close()
	require.Equal(t, Hg, repo.Kind())

	empty, err := repo.Empty()
	require.NoError(t, err)
	require.True(t, empty)

	_, err = repo.CanonicalRev("tip")
	require.ErrorIs(t, err, ErrEmptyRepository)

	writeTestFile(t, repoDir, "hello.txt", "hello\nworld\n")
	runVCSCommand(t, repoDir, "hg", "add", "hello.txt")
	runVCSCommand(t, repoDir, "hg", "commit", "-m", "first commit")

	writeTestFile(t, repoDir, "hello.txt", "hello\nthere\nworld\n")
	runVCSCommand(t, repoDir, "hg", "commit", "-m", "second commit")

	empty, err = repo.Empty()
	require.NoError(t, err)
	require.False(t, empty)

	count, err := repo.CommitCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	tip, err := repo.Tip("")
	require.NoError(t, err)
	require.Len(t, tip, 40)

	canon, err := repo.CanonicalRev(tip[:8])
	require.NoError(t, err)
	require.Equal(t, tip, canon)

	ok, err := repo.Contains("no-such-rev")
	require.NoError(t, err)
	require.False(t, ok)

	branches, err := repo.Branches()
	require.NoError(t, err)
	require.Contains(t, branches, "default")

	data, err := repo.Cat(tip, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello\nthere\nworld\n", string(data))

	entries, err := repo.Ls(tip, "/", LsOptions{Report: ReportSize})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hello.txt", entries[0].Path)
	require.Equal(t, TypeFile, entries[0].Type)
	require.Equal(t, int64(len(data)), entries[0].Size)

	_, err = repo.Ls(tip, "missing", LsOptions{})
	require.ErrorIs(t, err, ErrPathNotFound)

	log, err := repo.Log(LogOptions{})
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, "second commit", log[0].Subject())
	require.Equal(t, "first commit", log[1].Subject())

	parents, err := repo.Parents(tip)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, log[1].Rev, parents[0])

	changed, err := repo.Changed(parents[0])
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, FileChangeInfo{Path: "hello.txt", Kind: ChangeAdded}, changed[0])

	diff, err := repo.ParentDiff(tip)
	require.NoError(t, err)
	require.Contains(t, diff, "+there")

	ancestor, err := repo.Ancestor(tip, parents[0])
	require.NoError(t, err)
	require.Equal(t, parents[0], ancestor)

	blame, err := repo.Blame(tip, "hello.txt")
	require.NoError(t, err)
	require.Len(t, blame, 3)
	require.Equal(t, parents[0], blame[0].Rev)
	require.Equal(t, tip, blame[1].Rev)
	require.Equal(t, "there", blame[1].Line)
	require.Equal(t, parents[0], blame[2].Rev)

	// A commit made after open must be visible on the same handle.
	writeTestFile(t, repoDir, "hello.txt", "hello\nthere\nworld\nagain\n")
	runVCSCommand(t, repoDir, "hg", "commit", "-m", "third commit")

	count, err = repo.CommitCount()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	newTip, err := repo.Tip("")
	require.NoError(t, err)
	require.NotEqual(t, tip, newTip)
	require.Len(t, newTip, 40)
}
