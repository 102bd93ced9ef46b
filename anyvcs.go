// Package anyvcs presents one uniform, read-oriented interface over Git,
// Mercurial, and Subversion repositories. Callers list files, read blobs,
// inspect history, diff revisions, blame lines, and locate common ancestors
// without branching on the backend kind.
//
// Revision tokens (branch names, tags, bookmarks, hashes, numeric ids,
// aliases like "tip") are accepted anywhere a revision is expected and are
// resolved to canonical, backend-specific identifiers. Resolution never
// falls back silently: an unknown token fails with ErrUnknownRevision, an
// abbreviated hash matching several commits fails with
// ErrAmbiguousRevision, and any token in a zero-commit repository fails
// with ErrEmptyRepository.
package anyvcs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Repo is the unified query surface. All operations are synchronous and safe
// for concurrent use on one handle. Close releases the handle's private
// cache store; it never blocks on backend work.
type Repo interface {
	io.Closer

	Kind() VCS
	Path() string
	// PrivatePath returns a directory inside the repository reserved for
	// this library's derived data, created on first use. It never collides
	// with backend-managed files.
	PrivatePath() (string, error)

	// CanonicalRev maps a revision token to its canonical identifier.
	CanonicalRev(token string) (string, error)
	// Tip returns the canonical identifier of a named head.
	Tip(head string) (string, error)
	// Contains reports whether the token resolves to a known revision. It
	// returns false, not an error, for plain absence.
	Contains(token string) (bool, error)

	Ls(rev, path string, opts LsOptions) ([]Entry, error)
	Cat(rev, path string) ([]byte, error)
	ReadLink(rev, path string) (string, error)

	Branches() ([]string, error)
	Tags() ([]string, error)
	// Bookmarks is empty for backends without a bookmark concept.
	Bookmarks() ([]string, error)
	Heads() ([]string, error)

	Empty() (bool, error)
	CommitCount() (int, error)

	Log(opts LogOptions) ([]*CommitLogEntry, error)
	// LogEntry returns the metadata of a single revision. Changed paths are
	// not included; they are computed on demand by Changed.
	LogEntry(rev string) (*CommitLogEntry, error)
	// Parents returns the ordered parent identifiers of a revision. The
	// first parent is the mainline parent.
	Parents(rev string) ([]string, error)

	// Changed lists the paths a revision changed relative to its first
	// parent only; merge commits never report a full multi-parent diff.
	Changed(rev string) ([]FileChangeInfo, error)
	// ParentDiff returns the unified diff a revision introduces over its
	// first parent, with a path prefix of one (patch -p1).
	ParentDiff(rev string) (string, error)
	// Diff returns the unified diff between two revisions, optionally
	// limited to one path. Path-scoped diffs use the backend's native
	// facility rather than filtering a full-tree diff.
	Diff(revA, revB, path string) (string, error)

	// Ancestor returns the most recent common ancestor of two revisions.
	// Equidistant candidates are tie-broken deterministically: first-parent
	// reachability from both inputs wins, then the lexicographically
	// smallest identifier.
	Ancestor(revA, revB string) (string, error)

	// Blame attributes each line of the file at rev to the revision and
	// author that introduced it, aligned 1:1 with the file's lines.
	Blame(rev, path string) ([]BlameInfo, error)
}

// Probe inspects a location and reports the backend kind, or
// ErrNotRepository when no recognized layout is found.
func Probe(path string) (VCS, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("probe %s: %w", path, ErrNotRepository)
	}
	switch {
	case isDir(filepath.Join(path, ".git")):
		return Git, nil
	case isDir(filepath.Join(path, ".hg")):
		return Hg, nil
	case isFile(filepath.Join(path, "config")) &&
		isDir(filepath.Join(path, "objects")) &&
		isDir(filepath.Join(path, "refs")) &&
		isDir(filepath.Join(path, "branches")):
		return Git, nil
	case isFile(filepath.Join(path, "format")) &&
		isDir(filepath.Join(path, "conf")) &&
		isDir(filepath.Join(path, "db")) &&
		isDir(filepath.Join(path, "locks")):
		return Svn, nil
	}
	return "", fmt.Errorf("probe %s: %w", path, ErrNotRepository)
}

// Open opens an existing repository, detecting its kind from the on-disk
// layout. opts may be nil.
func Open(path string, opts *Options) (Repo, error) {
	vcs, err := Probe(path)
	if err != nil {
		return nil, err
	}
	return OpenVCS(path, vcs, opts)
}

// OpenVCS opens an existing repository of a known kind, skipping detection.
func OpenVCS(path string, vcs VCS, opts *Options) (Repo, error) {
	switch vcs {
	case Git:
		return openGit(path, opts.withDefaults())
	case Hg:
		return openHg(path, opts.withDefaults())
	case Svn:
		return openSvn(path, opts.withDefaults())
	}
	return nil, fmt.Errorf("%q: %w", vcs, ErrUnknownVCSType)
}

// Create initializes a new repository of the given kind at path. Git and
// Subversion repositories are created bare; repository creation and
// Subversion dump/load are the only write paths in this library.
func Create(path string, vcs VCS, opts *Options) (Repo, error) {
	switch vcs {
	case Git:
		return createGit(path, opts.withDefaults())
	case Hg:
		return createHg(path, opts.withDefaults())
	case Svn:
		return createSvn(path, opts.withDefaults())
	}
	return nil, fmt.Errorf("%q: %w", vcs, ErrUnknownVCSType)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
