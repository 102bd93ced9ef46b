package anyvcs

import (
	"encoding/json"
	"strings"
	"time"
)

// VCS identifies one of the supported backends.
type VCS string

const (
	Git VCS = "git"
	Hg  VCS = "hg"
	Svn VCS = "svn"
)

func (v VCS) valid() bool {
	switch v {
	case Git, Hg, Svn:
		return true
	}
	return false
}

// EntryType classifies a directory listing entry.
type EntryType uint8

const (
	TypeFile EntryType = iota
	TypeDir
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "f"
	case TypeDir:
		return "d"
	case TypeSymlink:
		return "l"
	}
	return "?"
}

// Report selects optional Entry attributes that need extra backend work.
type Report uint8

const (
	ReportSize Report = 1 << iota
	ReportTarget
	ReportExecutable
	ReportCommit
)

func (r Report) has(f Report) bool { return r&f != 0 }

// LsOptions controls Ls behavior.
type LsOptions struct {
	// Recursive lists files in subdirectories. RecursiveDirs additionally
	// lists the directories themselves.
	Recursive     bool
	RecursiveDirs bool
	// Directory lists the path itself instead of its contents when the path
	// is a directory.
	Directory bool
	Report    Report
}

// Entry is one item in a directory listing.
type Entry struct {
	// Path is the full path from the repository root. Name is relative to
	// the listed path and empty when listing the path itself.
	Path string
	Name string
	Type EntryType

	// Populated only when the corresponding Report flag was requested.
	Size       int64
	Target     string
	Executable bool
	Commit     string
}

// CommitLogEntry is the normalized commit metadata shared by all backends.
// Entries are immutable once constructed; a revision identifier's data never
// changes, so entries are cached indefinitely under it.
type CommitLogEntry struct {
	Rev     string
	Parents []string
	Date    time.Time
	Author  string
	Message string
}

// Subject returns the first line of the commit message.
func (e *CommitLogEntry) Subject() string {
	subject, _, _ := strings.Cut(e.Message, "\n")
	return subject
}

// jsonLogEntry is the persisted form, compatible across store generations by
// the version tag.
type jsonLogEntry struct {
	V       int      `json:"v"`
	Rev     string   `json:"r"`
	Parents []string `json:"p"`
	Date    string   `json:"d"`
	Author  string   `json:"a"`
	Message string   `json:"m"`
}

func (e *CommitLogEntry) marshal() ([]byte, error) {
	return json.Marshal(jsonLogEntry{
		V:       1,
		Rev:     e.Rev,
		Parents: e.Parents,
		Date:    e.Date.Format(time.RFC3339),
		Author:  e.Author,
		Message: e.Message,
	})
}

func unmarshalLogEntry(data []byte) (*CommitLogEntry, bool) {
	var j jsonLogEntry
	if err := json.Unmarshal(data, &j); err != nil || j.V != 1 {
		return nil, false
	}
	date, err := time.Parse(time.RFC3339, j.Date)
	if err != nil {
		return nil, false
	}
	return &CommitLogEntry{
		Rev:     j.Rev,
		Parents: j.Parents,
		Date:    date,
		Author:  j.Author,
		Message: j.Message,
	}, true
}

// ChangeKind is the normalized change classification. Backend-native status
// codes are mapped onto this set; renames are reported as ChangeCopied with
// CopyFrom carrying the source path.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
	ChangeCopied
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeCopied:
		return "copied"
	}
	return "unknown"
}

// FileChangeInfo describes one changed path in a revision or diff.
type FileChangeInfo struct {
	Path     string
	Kind     ChangeKind
	CopyFrom string
}

// BlameInfo attributes one line of a file to the revision that introduced it.
type BlameInfo struct {
	Rev    string
	Author string
	Date   time.Time
	Line   string
}

// MergeFilter restricts Log output by merge status.
type MergeFilter uint8

const (
	MergesEither MergeFilter = iota
	MergesOnly
	MergesNone
)

// LogOptions selects a log range. The range is (From, To]: entries start at
// To and follow history back, excluding From and its ancestors. An empty To
// means all heads; an empty From means back to the beginning of history.
type LogOptions struct {
	From string
	To   string
	// Limit caps the number of entries; zero means unlimited.
	Limit       int
	FirstParent bool
	Merges      MergeFilter
	// Path restricts output to commits touching the path. Follow tracks the
	// path across renames where the backend supports it.
	Path   string
	Follow bool
}

// EncodingPolicy controls how backend byte output is decoded into strings.
type EncodingPolicy uint8

const (
	// EncodingStrict fails with ErrEncoding on invalid UTF-8.
	EncodingStrict EncodingPolicy = iota
	// EncodingReplace substitutes U+FFFD for invalid sequences.
	EncodingReplace
)

// DefaultCacheSize bounds the per-handle operation cache.
const DefaultCacheSize = 4096

// Options configures a repository handle. The zero value is usable.
type Options struct {
	Encoding EncodingPolicy
	// CacheSize is the per-handle result cache bound in entries. Values <= 0
	// select DefaultCacheSize.
	CacheSize int
	// SvnBranchGlobs and SvnTagGlobs control branch and tag detection in
	// Subversion repositories. Defaults match the conventional
	// trunk/branches/tags layout.
	SvnBranchGlobs []string
	SvnTagGlobs    []string
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if len(opts.SvnBranchGlobs) == 0 {
		opts.SvnBranchGlobs = []string{"/trunk/", "/branches/*/"}
	}
	if len(opts.SvnTagGlobs) == 0 {
		opts.SvnTagGlobs = []string{"/tags/*/"}
	}
	return opts
}
