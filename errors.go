package anyvcs

import (
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy. Lookup and resolution failures wrap one of these
// sentinels so callers can classify with errors.Is without string matching.
var (
	// ErrNotRepository is returned by Open and Probe when the location does
	// not match any recognized repository layout.
	ErrNotRepository = errors.New("not a recognized version control repository")

	// ErrUnknownVCSType is returned when a VCS kind is not one of Git, Hg, Svn.
	ErrUnknownVCSType = errors.New("unknown VCS type")

	// ErrUnknownRevision is returned when a revision token matches nothing.
	ErrUnknownRevision = errors.New("unknown revision")

	// ErrAmbiguousRevision is returned when a token (typically an abbreviated
	// hash) matches more than one revision.
	ErrAmbiguousRevision = errors.New("ambiguous revision")

	// ErrEmptyRepository is returned when resolving any token in a repository
	// with zero commits. Backends differ on whether a default branch even
	// exists before the first commit, so this is distinct from
	// ErrUnknownRevision.
	ErrEmptyRepository = errors.New("repository has no commits")

	// ErrNoCommonAncestor is returned by Ancestor when the two revisions have
	// disjoint histories.
	ErrNoCommonAncestor = errors.New("no common ancestor")

	// ErrPathNotFound is returned when a path does not exist at a revision.
	ErrPathNotFound = errors.New("path does not exist")

	// ErrBadFileType is returned when a path exists but is not the file type
	// the operation requires (e.g. Cat on a directory).
	ErrBadFileType = errors.New("unexpected file type")

	// ErrEncoding is returned when backend output cannot be decoded as UTF-8
	// and the repository was opened with EncodingStrict.
	ErrEncoding = errors.New("output is not valid UTF-8")
)

// CommandError reports a backend tool invocation that exited nonzero or could
// not be started. The core never retries; classification is the caller's
// signal.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	switch {
	case msg != "":
		return fmt.Sprintf("%s: exit %d: %s", e.Cmd, e.ExitCode, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	default:
		return fmt.Sprintf("%s: exit %d", e.Cmd, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error { return e.Err }

func unknownRevision(token string) error {
	return fmt.Errorf("%q: %w", token, ErrUnknownRevision)
}

func ambiguousRevision(token string) error {
	return fmt.Errorf("%q: %w", token, ErrAmbiguousRevision)
}

func pathNotFound(rev, path string) error {
	return fmt.Errorf("%s:%s: %w", rev, path, ErrPathNotFound)
}

func badFileType(rev, path string) error {
	return fmt.Errorf("%s:%s: %w", rev, path, ErrBadFileType)
}
