package anyvcs

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	svnTool      = "svn"
	svnadminTool = "svnadmin"
	svnlookTool  = "svnlook"
)

var (
	svnMergeinfoRx = regexp.MustCompile(`^(.+):(\d+)(?:-(\d+))?$`)
	svnCopyInfoRx  = regexp.MustCompile(`^ {4}\(from (.+)\)$`)
	svnDigitsRx    = regexp.MustCompile(`^\d+$`)
)

// SvnRepo is the Subversion backend, driven through svnlook, svnadmin, and
// svn against a local repository (never a working copy).
//
// Revision tokens combine an optional head path and an optional revision
// number: "194", "trunk", "trunk:194", "branches/b1:7". HEAD names the
// repository root; a token without a number means the youngest revision.
// Canonical identifiers keep the same composite shape.
type SvnRepo struct {
	repoBase
	absPath     string
	branchGlobs []string
	tagGlobs    []string

	verOnce sync.Once
	ver     []int
	verErr  error
}

func openSvn(p string, opts Options) (*SvnRepo, error) {
	if !isDir(filepath.Join(p, "db")) || !isFile(filepath.Join(p, "format")) {
		return nil, fmt.Errorf("open %s: %w", p, ErrNotRepository)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	return &SvnRepo{
		repoBase:    newRepoBase(p, opts),
		absPath:     abs,
		branchGlobs: opts.SvnBranchGlobs,
		tagGlobs:    opts.SvnTagGlobs,
	}, nil
}

func createSvn(p string, opts Options) (*SvnRepo, error) {
	if err := os.MkdirAll(p, 0o777); err != nil {
		return nil, err
	}
	if _, err := runToolOut("", svnadminTool, "create", p); err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}
	return openSvn(p, opts)
}

func (r *SvnRepo) Kind() VCS { return Svn }

func (r *SvnRepo) svnlook(args ...string) ([]byte, error) {
	return runToolOut(r.path, svnlookTool, args...)
}

func (r *SvnRepo) PrivatePath() (string, error) {
	return r.privateSubdir(".private")
}

// svnVersion reports the installed svn client version, probed once per
// handle; output parsing differs across 1.8.
func (r *SvnRepo) svnVersion() ([]int, error) {
	r.verOnce.Do(func() {
		out, err := runToolOut(r.path, svnTool, "--version", "--quiet")
		if err != nil {
			r.verErr = err
			return
		}
		for _, part := range strings.Split(strings.TrimSpace(string(out)), ".") {
			n, err := strconv.Atoi(part)
			if err != nil {
				break
			}
			r.ver = append(r.ver, n)
		}
	})
	return r.ver, r.verErr
}

func versionAtLeast(ver []int, major, minor int) bool {
	if len(ver) < 2 {
		return false
	}
	return ver[0] > major || ver[0] == major && ver[1] >= minor
}

// svnJoin joins path segments into a repository path with a leading slash
// and no repeats.
func svnJoin(elems ...string) string {
	var parts []string
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return "/" + multislashRx.ReplaceAllString(strings.Join(parts, "/"), "/")
}

// parseSvnRev splits a token into its head and revision number components.
// The head must not look like a number; a missing number means "youngest".
func parseSvnRev(token string) (head string, rev int, hasRev bool, err error) {
	if token == "" {
		return "", 0, false, unknownRevision(token)
	}
	if svnDigitsRx.MatchString(token) {
		n, _ := strconv.Atoi(token)
		return "", n, true, nil
	}
	if token[0] >= '0' && token[0] <= '9' {
		return "", 0, false, unknownRevision(token)
	}
	if i := strings.LastIndexByte(token, ':'); i >= 0 {
		head, numStr := token[:i], token[i+1:]
		if head == "" {
			return "", 0, false, unknownRevision(token)
		}
		if numStr == "" {
			return head, 0, false, nil
		}
		n, convErr := strconv.Atoi(numStr)
		if convErr != nil {
			return "", 0, false, unknownRevision(token)
		}
		return head, n, true, nil
	}
	return token, 0, false, nil
}

// maprev resolves a token to a numeric revision and the repository path
// prefix it addresses. HEAD and bare numbers address the root.
func (r *SvnRepo) maprev(token string) (rev int, prefix string, err error) {
	head, rev, hasRev, err := parseSvnRev(token)
	if err != nil {
		return 0, "", err
	}
	if !hasRev {
		rev, err = r.Youngest()
		if err != nil {
			return 0, "", err
		}
	}
	if head == "" || head == "HEAD" {
		return rev, "/", nil
	}
	return rev, "/" + strings.Trim(head, "/"), nil
}

// formatRev renders the canonical composite identifier for a revision of a
// head: bare number for the root, "head:number" otherwise.
func formatRev(rev int, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return strconv.Itoa(rev)
	}
	return prefix + ":" + strconv.Itoa(rev)
}

func (r *SvnRepo) Youngest() (int, error) {
	out, err := r.svnlook("youngest", ".")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

func (r *SvnRepo) CanonicalRev(token string) (string, error) {
	if empty, err := r.Empty(); err != nil {
		return "", err
	} else if empty {
		return "", fmt.Errorf("%q: %w", token, ErrEmptyRepository)
	}
	rev, prefix, err := r.maprev(token)
	if err != nil {
		return "", err
	}
	history, err := r.history(rev, prefix, 1)
	if err != nil || len(history) == 0 {
		return "", unknownRevision(token)
	}
	return formatRev(history[0].rev, prefix), nil
}

// ComposeRev builds the composite identifier of a branch at a revision.
func (r *SvnRepo) ComposeRev(branch, rev string) (string, error) {
	n, _, err := r.maprev(rev)
	if err != nil {
		return "", err
	}
	return formatRev(n, branch), nil
}

func (r *SvnRepo) Tip(head string) (string, error) {
	if head == "" || head == "HEAD" {
		youngest, err := r.Youngest()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(youngest), nil
	}
	youngest, err := r.Youngest()
	if err != nil {
		return "", err
	}
	history, err := r.history(youngest, "/"+strings.Trim(head, "/"), 1)
	if err != nil || len(history) == 0 {
		return "", unknownRevision(head)
	}
	return formatRev(history[0].rev, head), nil
}

func (r *SvnRepo) Contains(token string) (bool, error) {
	rev, prefix, err := r.maprev(token)
	if err != nil {
		if errors.Is(err, ErrUnknownRevision) {
			return false, nil
		}
		return false, err
	}
	_, _, runErr := runTool(r.path, nil, svnlookTool,
		[]string{"history", ".", prefix, "-l1", "-r", strconv.Itoa(rev)})
	if runErr == nil {
		return true, nil
	}
	if toolExitCode(runErr) >= 0 {
		// The tool ran and rejected the revision: plain absence.
		return false, nil
	}
	return false, runErr
}

func (r *SvnRepo) Empty() (bool, error) {
	out, err := r.svnlook("history", ".", "-l2")
	if err != nil {
		return false, err
	}
	return len(strings.Split(strings.TrimRight(string(out), "\n"), "\n")) < 4, nil
}

func (r *SvnRepo) CommitCount() (int, error) {
	out, err := r.svnlook("history", ".")
	if err != nil {
		return 0, err
	}
	n := len(strings.Split(strings.TrimRight(string(out), "\n"), "\n")) - 3
	if n < 0 {
		n = 0
	}
	return n, nil
}

// globHeads matches the configured branch/tag globs against the directory
// tree at the youngest revision, one glob segment per directory level.
func (r *SvnRepo) globHeads(globs []string) ([]string, error) {
	youngest, err := r.Youngest()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var results []string
	var walk func(dir string, segments []string) error
	walk = func(dir string, segments []string) error {
		entries, err := r.Ls(strconv.Itoa(youngest), dir, LsOptions{})
		if err != nil {
			if errors.Is(err, ErrPathNotFound) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			if entry.Type != TypeDir {
				continue
			}
			ok, err := path.Match(segments[0], entry.Name)
			if err != nil || !ok {
				continue
			}
			p := entry.Name
			if dir != "" {
				p = dir + "/" + entry.Name
			}
			if len(segments) == 1 {
				if !seen[p] {
					seen[p] = true
					results = append(results, p)
				}
				continue
			}
			if err := walk(p, segments[1:]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, glob := range globs {
		segments := strings.Split(strings.Trim(glob, "/"), "/")
		if len(segments) == 0 || segments[0] == "" {
			continue
		}
		if err := walk("", segments); err != nil {
			return nil, err
		}
	}
	sort.Strings(results)
	return results, nil
}

func (r *SvnRepo) Branches() ([]string, error) {
	heads, err := r.globHeads(r.branchGlobs)
	if err != nil {
		return nil, err
	}
	return append([]string{"HEAD"}, heads...), nil
}

func (r *SvnRepo) Tags() ([]string, error) {
	return r.globHeads(r.tagGlobs)
}

// Bookmarks is a Mercurial concept; Subversion has none.
func (r *SvnRepo) Bookmarks() ([]string, error) {
	return []string{}, nil
}

func (r *SvnRepo) Heads() ([]string, error) {
	heads, err := r.globHeads(append(append([]string{}, r.branchGlobs...), r.tagGlobs...))
	if err != nil {
		return nil, err
	}
	return append([]string{"HEAD"}, heads...), nil
}

// proplist lists property names of a path at a revision; an empty path
// lists revision properties. svn 1.8 prepends a banner line when a path is
// given.
func (r *SvnRepo) proplist(rev, p string) ([]string, error) {
	args := []string{"proplist", "-r", rev, "."}
	if p == "" {
		args = append(args, "--revprop")
	} else {
		args = append(args, p)
	}
	out, err := r.svnlook(args...)
	if err != nil {
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	props := []string{}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			props = append(props, line)
		}
	}
	if p != "" {
		if ver, err := r.svnVersion(); err == nil && versionAtLeast(ver, 1, 8) && len(props) > 0 {
			props = props[1:]
		}
	}
	return props, nil
}

// PropList lists Subversion property names of a path, or the revision
// properties when path is empty.
func (r *SvnRepo) PropList(rev, p string) ([]string, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return r.proplist(strconv.Itoa(n), "")
	}
	return r.proplist(strconv.Itoa(n), svnJoin(prefix, p))
}

func (r *SvnRepo) propget(prop, rev, p string) (string, error) {
	args := []string{"propget", "-r", rev, ".", prop}
	if p == "" {
		args = append(args, "--revprop")
	} else {
		args = append(args, p)
	}
	out, err := r.svnlook(args...)
	if err != nil {
		return "", err
	}
	return r.decode(out)
}

// PropGet reads one Subversion property of a path, or a revision property
// when path is empty.
func (r *SvnRepo) PropGet(prop, rev, p string) (string, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return "", err
	}
	if p == "" {
		return r.propget(prop, strconv.Itoa(n), "")
	}
	return r.propget(prop, strconv.Itoa(n), svnJoin(prefix, p))
}

type svnMergeRange struct {
	head   string
	minrev int
	maxrev int
}

// mergeinfo parses svn:mergeinfo of a path, the only record Subversion
// keeps of merge parentage.
func (r *SvnRepo) mergeinfo(rev int, p string) ([]svnMergeRange, error) {
	revstr := strconv.Itoa(rev)
	props, err := r.proplist(revstr, p)
	if err != nil {
		return nil, err
	}
	found := false
	for _, prop := range props {
		if prop == "svn:mergeinfo" {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}
	value, err := r.propget("svn:mergeinfo", revstr, p)
	if err != nil {
		return nil, err
	}
	var ranges []svnMergeRange
	for _, line := range strings.Split(strings.TrimSuffix(value, "\n"), "\n") {
		if line == "" {
			continue
		}
		m := svnMergeinfoRx.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("svn:mergeinfo: unexpected line %q", line)
		}
		minrev, _ := strconv.Atoi(m[2])
		maxrev := minrev
		if m[3] != "" {
			maxrev, _ = strconv.Atoi(m[3])
		}
		ranges = append(ranges, svnMergeRange{head: m[1], minrev: minrev, maxrev: maxrev})
	}
	return ranges, nil
}

func (r *SvnRepo) Ls(rev, origPath string, opts LsOptions) ([]Entry, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	revstr := strconv.Itoa(n)
	p := svnJoin(prefix, origPath)
	forceDir := strings.HasSuffix(origPath, "/")
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}

	ltrim := len(p) + 1
	if p == "/" {
		if opts.Directory {
			entry := Entry{Path: "/", Type: TypeDir}
			if opts.Report.has(ReportCommit) {
				history, err := r.history(n, "/", 1)
				if err != nil || len(history) == 0 {
					return nil, unknownRevision(rev)
				}
				entry.Commit = strconv.Itoa(history[0].rev)
			}
			return []Entry{entry}, nil
		}
		ltrim = 1
	}

	args := []string{"tree", "-r", revstr, "--full-paths"}
	if !opts.Recursive {
		args = append(args, "--non-recursive")
	}
	args = append(args, ".", p)
	out, _, err := runTool(r.path, nil, svnlookTool, args)
	if err != nil {
		if toolExitCode(err) == 1 && strings.Contains(toolStderr(err), "File not found") {
			return nil, pathNotFound(rev, origPath)
		}
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, pathNotFound(rev, origPath)
	}
	if forceDir && !strings.HasSuffix(lines[0], "/") {
		return nil, pathNotFound(rev, origPath)
	}
	if strings.HasSuffix(lines[0], "/") {
		if opts.Directory {
			lines = lines[:1]
		} else {
			lines = lines[1:]
		}
	}

	entries := []Entry{}
	for _, name := range lines {
		entryName := ""
		if len(name) > ltrim {
			entryName = name[ltrim:]
		}
		entry := Entry{Path: strings.Trim(name, "/")}
		if strings.HasSuffix(name, "/") {
			if opts.Recursive && !opts.RecursiveDirs && !opts.Directory {
				continue
			}
			entry.Type = TypeDir
			entryName = strings.TrimSuffix(entryName, "/")
		} else {
			if err := r.fillSvnFile(&entry, revstr, name, opts.Report); err != nil {
				return nil, err
			}
		}
		entry.Name = entryName
		if opts.Report.has(ReportCommit) {
			history, err := r.history(n, name, 1)
			if err != nil || len(history) == 0 {
				return nil, pathNotFound(rev, origPath)
			}
			entry.Commit = strconv.Itoa(history[0].rev)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// fillSvnFile classifies a non-directory node: svn:special entries whose
// content reads "link TARGET" are symlinks, everything else is a file.
func (r *SvnRepo) fillSvnFile(entry *Entry, revstr, fullPath string, report Report) error {
	props, err := r.proplist(revstr, fullPath)
	if err != nil {
		return err
	}
	special := false
	executable := false
	for _, prop := range props {
		switch prop {
		case "svn:special":
			special = true
		case "svn:executable":
			executable = true
		}
	}
	if special {
		data, err := r.catRaw(revstr, fullPath)
		if err != nil {
			return err
		}
		text, decErr := decodeText(data, EncodingReplace)
		if decErr == nil {
			if kind, target, ok := strings.Cut(strings.TrimSuffix(text, "\n"), " "); ok && kind == "link" {
				entry.Type = TypeSymlink
				if report.has(ReportTarget) {
					entry.Target = target
				}
				return nil
			}
		}
	}
	entry.Type = TypeFile
	if report.has(ReportExecutable) {
		entry.Executable = executable
	}
	if report.has(ReportSize) {
		data, err := r.catRaw(revstr, fullPath)
		if err != nil {
			return err
		}
		entry.Size = int64(len(data))
	}
	return nil
}

func (r *SvnRepo) catRaw(revstr, fullPath string) ([]byte, error) {
	return r.svnlook("cat", "-r", revstr, ".", fullPath)
}

func (r *SvnRepo) Cat(rev, p string) ([]byte, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	full := svnJoin(prefix, p)
	ls, err := r.Ls(rev, p, LsOptions{Directory: true})
	if err != nil {
		return nil, err
	}
	if len(ls) != 1 || ls[0].Type != TypeFile {
		return nil, badFileType(rev, p)
	}
	return r.catRaw(strconv.Itoa(n), full)
}

func (r *SvnRepo) ReadLink(rev, p string) (string, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return "", err
	}
	full := svnJoin(prefix, p)
	ls, err := r.Ls(rev, p, LsOptions{Directory: true})
	if err != nil {
		return "", err
	}
	if len(ls) != 1 || ls[0].Type != TypeSymlink {
		return "", badFileType(rev, p)
	}
	data, err := r.catRaw(strconv.Itoa(n), full)
	if err != nil {
		return "", err
	}
	text, err := r.decode(data)
	if err != nil {
		return "", err
	}
	kind, target, ok := strings.Cut(strings.TrimSuffix(text, "\n"), " ")
	if !ok || kind != "link" {
		return "", badFileType(rev, p)
	}
	return target, nil
}

type svnHistoryEntry struct {
	rev  int
	path string
}

// history wraps `svnlook history`: the revisions that touched a path at or
// before rev, newest first, with the path's name at each revision.
func (r *SvnRepo) history(rev int, p string, limit int) ([]svnHistoryEntry, error) {
	key := cacheKey("history", strconv.Itoa(rev), p, strconv.Itoa(limit))
	return cached(r.cache, key, func() ([]svnHistoryEntry, error) {
		args := []string{"history", ".", "-r", strconv.Itoa(rev), p}
		if limit > 0 {
			args = append(args, "-l", strconv.Itoa(limit))
		}
		out, err := r.svnlook(args...)
		if err != nil {
			return nil, err
		}
		text, err := r.decode(out)
		if err != nil {
			return nil, err
		}
		lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
		if len(lines) <= 2 {
			return nil, nil
		}
		var results []svnHistoryEntry
		for _, line := range lines[2:] {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("svnlook history: unexpected line %q", line)
			}
			results = append(results, svnHistoryEntry{rev: n, path: fields[1]})
		}
		return results, nil
	})
}

// mergeHistory extends a path's direct history with the revision ranges its
// svn:mergeinfo says were merged in.
func (r *SvnRepo) mergeHistory(rev int, p string, limit int) (map[svnHistoryEntry]bool, error) {
	direct, err := r.history(rev, p, limit)
	if err != nil {
		return nil, err
	}
	results := map[svnHistoryEntry]bool{}
	for _, h := range direct {
		results[h] = true
	}
	ranges, err := r.mergeinfo(rev, p)
	if err != nil {
		return nil, err
	}
	for _, mr := range ranges {
		l := mr.maxrev - mr.minrev + 1
		if limit > 0 && limit < l {
			l = limit
		}
		merged, err := r.history(mr.maxrev, mr.head, l)
		if err != nil {
			return nil, err
		}
		for _, h := range merged {
			if h.rev < mr.minrev {
				break
			}
			results[h] = true
		}
	}
	return results, nil
}

func (r *SvnRepo) LogEntry(rev string) (*CommitLogEntry, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	history, err := r.history(n, prefix, 1)
	if err != nil || len(history) == 0 {
		return nil, unknownRevision(rev)
	}
	return r.logEntryAt(history[0].rev, prefix)
}

func (r *SvnRepo) logEntryAt(rev int, prefix string) (*CommitLogEntry, error) {
	canon := formatRev(rev, prefix)
	return r.cachedLogEntry(canon, r.PrivatePath, func() (*CommitLogEntry, error) {
		out, err := r.svnlook("info", ".", "-r", strconv.Itoa(rev))
		if err != nil {
			return nil, err
		}
		text, err := r.decode(out)
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(text, "\n", 4)
		if len(parts) < 4 {
			return nil, fmt.Errorf("svnlook info: unexpected output %q", text)
		}
		author := parts[0]
		date, err := parseSvnDate(parts[1])
		if err != nil {
			return nil, err
		}
		parents, err := r.parentIDs(rev, prefix)
		if err != nil {
			return nil, err
		}
		return &CommitLogEntry{
			Rev:     canon,
			Parents: parents,
			Date:    date,
			Author:  author,
			Message: parts[3],
		}, nil
	})
}

// parentIDs derives parentage from the path's own history plus any
// mergeinfo ranges that end beyond the previous direct revision.
func (r *SvnRepo) parentIDs(rev int, prefix string) ([]string, error) {
	history, err := r.history(rev, prefix, 2)
	if err != nil {
		return nil, err
	}
	parents := []string{}
	if len(history) > 1 {
		prev := history[1].rev
		parents = append(parents, formatRev(prev, prefix))
		ranges, err := r.mergeinfo(rev, prefix)
		if err != nil {
			return nil, err
		}
		for _, mr := range ranges {
			if prev < mr.maxrev {
				merged, err := r.history(mr.maxrev, mr.head, 1)
				if err != nil || len(merged) == 0 {
					continue
				}
				parents = append(parents, formatRev(merged[0].rev, mr.head))
			}
		}
	}
	return parents, nil
}

// parseSvnDate reads svnlook's date line, e.g.
// "2014-01-01 12:00:00 +0000 (Wed, 01 Jan 2014)".
func parseSvnDate(s string) (time.Time, error) {
	if i := strings.Index(s, " ("); i >= 0 {
		s = s[:i]
	}
	return time.Parse("2006-01-02 15:04:05 -0700", strings.TrimSpace(s))
}

func (r *SvnRepo) Parents(rev string) ([]string, error) {
	entry, err := r.LogEntry(rev)
	if err != nil {
		return nil, err
	}
	return entry.Parents, nil
}

func (r *SvnRepo) parentRevs(rev string) ([]string, error) {
	return r.Parents(rev)
}

func (r *SvnRepo) Log(opts LogOptions) ([]*CommitLogEntry, error) {
	var includes map[svnHistoryEntry]bool
	switch {
	case opts.From == "" && opts.To == "":
		youngest, err := r.Youngest()
		if err != nil {
			return nil, err
		}
		p := "/"
		if opts.Path != "" {
			p = svnJoin(opts.Path)
		}
		direct, err := r.history(youngest, p, opts.Limit)
		if err != nil {
			return nil, err
		}
		return r.historyEntries(direct, opts)
	case opts.To == "":
		// No upper bound: union over every detected head.
		youngest, err := r.Youngest()
		if err != nil {
			return nil, err
		}
		heads, err := r.Heads()
		if err != nil {
			return nil, err
		}
		includes = map[svnHistoryEntry]bool{}
		for _, head := range heads {
			if head == "HEAD" {
				continue
			}
			p := svnJoin(head, opts.Path)
			merged, err := r.mergeHistory(youngest, p, opts.Limit)
			if err != nil {
				return nil, err
			}
			for h := range merged {
				includes[h] = true
			}
		}
	default:
		n, prefix, err := r.maprev(opts.To)
		if err != nil {
			return nil, err
		}
		p := prefix
		if opts.Path != "" {
			p = svnJoin(prefix, opts.Path)
		}
		if opts.FirstParent {
			direct, err := r.history(n, p, opts.Limit)
			if err != nil {
				return nil, err
			}
			includes = map[svnHistoryEntry]bool{}
			for _, h := range direct {
				includes[h] = true
			}
		} else {
			includes, err = r.mergeHistory(n, p, opts.Limit)
			if err != nil {
				return nil, err
			}
		}
	}

	if opts.From != "" {
		n, prefix, err := r.maprev(opts.From)
		if err != nil {
			return nil, err
		}
		exclude, err := r.mergeHistory(n, prefix, 0)
		if err != nil {
			return nil, err
		}
		for h := range exclude {
			delete(includes, h)
		}
	}

	sorted := make([]svnHistoryEntry, 0, len(includes))
	for h := range includes {
		sorted = append(sorted, h)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].rev > sorted[j].rev })
	return r.historyEntries(sorted, opts)
}

func (r *SvnRepo) historyEntries(history []svnHistoryEntry, opts LogOptions) ([]*CommitLogEntry, error) {
	entries := []*CommitLogEntry{}
	for _, h := range history {
		entry, err := r.logEntryAt(h.rev, h.path)
		if err != nil {
			return nil, err
		}
		if !mergeMatch(opts.Merges, len(entry.Parents)) {
			continue
		}
		entries = append(entries, entry)
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			break
		}
	}
	return entries, nil
}

func (r *SvnRepo) Changed(rev string) ([]FileChangeInfo, error) {
	n, _, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []FileChangeInfo{}, nil
	}
	return cached(r.cache, cacheKey("changed", strconv.Itoa(n)), func() ([]FileChangeInfo, error) {
		out, err := r.svnlook("changed", ".", "-r", strconv.Itoa(n), "--copy-info")
		if err != nil {
			return nil, err
		}
		text, err := r.decode(out)
		if err != nil {
			return nil, err
		}
		return parseSvnChanged(text)
	})
}

func (r *SvnRepo) changedPaths(rev string) ([]FileChangeInfo, error) {
	return r.Changed(rev)
}

// parseSvnChanged reads `svnlook changed --copy-info` output: a status
// column, the path, and for copies an indented "(from SRC:rN)" line after.
func parseSvnChanged(text string) ([]FileChangeInfo, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	changes := []FileChangeInfo{}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if len(line) < 4 {
			return nil, fmt.Errorf("svnlook changed: unexpected line %q", line)
		}
		status := line[:3]
		p := strings.TrimPrefix(line[4:], "/")
		change := FileChangeInfo{Path: strings.TrimSuffix(p, "/")}
		switch status[0] {
		case 'A':
			change.Kind = ChangeAdded
		case 'D':
			change.Kind = ChangeRemoved
		default:
			change.Kind = ChangeModified
		}
		if strings.Contains(status, "+") {
			if i+1 < len(lines) {
				if m := svnCopyInfoRx.FindStringSubmatch(lines[i+1]); m != nil {
					src := m[1]
					if j := strings.LastIndex(src, ":r"); j >= 0 {
						src = src[:j]
					}
					change.Kind = ChangeCopied
					change.CopyFrom = strings.TrimPrefix(src, "/")
					i++
				}
			}
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (r *SvnRepo) ParentDiff(rev string) (string, error) {
	n, _, err := r.maprev(rev)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	out, err := r.svnlook("diff", ".", "-r", strconv.Itoa(n))
	if err != nil {
		return "", err
	}
	text, err := r.decode(out)
	if err != nil {
		return "", err
	}
	return addDiffPrefix(text, "a", "b"), nil
}

// composeURL builds the file:// URL of a path at a revision for the svn
// client.
func (r *SvnRepo) composeURL(rev int, prefix, p string) string {
	url := "file://" + r.absPath
	prefix = strings.Trim(prefix, "/")
	p = strings.TrimPrefix(p, "/")
	if prefix != "" {
		url += "/" + prefix
	}
	if p != "" {
		url += "/" + p
	}
	return fmt.Sprintf("%s@%d", url, rev)
}

func (r *SvnRepo) Diff(revA, revB, p string) (string, error) {
	return r.diffPath(revA, revB, p, "a", "b")
}

func (r *SvnRepo) lsDirEntry(rev, p string) (*Entry, error) {
	ls, err := r.Ls(rev, p, LsOptions{Directory: true})
	if err != nil {
		if errors.Is(err, ErrPathNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ls[0], nil
}

// diffPath renders the unified diff of a path between two revisions. Both
// sides present means the svn client can do it natively; one-sided paths
// are rendered file by file, with directories recursed.
func (r *SvnRepo) diffPath(revA, revB, p, labelA, labelB string) (string, error) {
	var entryA, entryB *Entry
	var err error
	exists := func(rev string) (*Entry, error) {
		if p == "" {
			return &Entry{Path: "/", Type: TypeDir}, nil
		}
		return r.lsDirEntry(rev, p)
	}
	if entryA, err = exists(revA); err != nil {
		return "", err
	}
	if entryB, err = exists(revB); err != nil {
		return "", err
	}
	switch {
	case entryA == nil && entryB == nil:
		return "", nil
	case entryA != nil && entryB != nil:
		na, prefixA, err := r.maprev(revA)
		if err != nil {
			return "", err
		}
		nb, prefixB, err := r.maprev(revB)
		if err != nil {
			return "", err
		}
		out, err := runToolOut(r.path, svnTool, "diff",
			r.composeURL(na, prefixA, p), r.composeURL(nb, prefixB, p))
		if err != nil {
			return "", err
		}
		text, err := r.decode(out)
		if err != nil {
			return "", err
		}
		return addDiffPrefix(text, labelA, labelB), nil
	}

	present := entryA
	presentRev := revA
	if present == nil {
		present = entryB
		presentRev = revB
	}
	if present.Type == TypeDir {
		contents, err := r.Ls(presentRev, p, LsOptions{})
		if err != nil {
			return "", err
		}
		var out strings.Builder
		for _, child := range contents {
			childPath := child.Name
			if p != "" {
				childPath = strings.TrimSuffix(p, "/") + "/" + child.Name
			}
			text, err := r.diffPath(revA, revB, childPath, labelA, labelB)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
		}
		return out.String(), nil
	}
	return r.oneSidedDiff(revA, revB, p, entryA, entryB, labelA, labelB)
}

// oneSidedDiff renders an add or delete diff with difflib; binary content
// degrades to a marker line keyed on content hashes.
func (r *SvnRepo) oneSidedDiff(revA, revB, p string, entryA, entryB *Entry, labelA, labelB string) (string, error) {
	_, prefixA, err := r.maprev(revA)
	if err != nil {
		return "", err
	}
	_, prefixB, err := r.maprev(revB)
	if err != nil {
		return "", err
	}
	fromFile := os.DevNull
	toFile := os.DevNull
	if entryA != nil {
		fromFile = strings.TrimPrefix(svnJoin(labelA, prefixA, p), "/")
	}
	if entryB != nil {
		toFile = strings.TrimPrefix(svnJoin(labelB, prefixB, p), "/")
	}
	textA, hashA, err := r.diffRead(revA, p, entryA)
	if err != nil {
		return "", err
	}
	textB, hashB, err := r.diffRead(revB, p, entryB)
	if err != nil {
		return "", err
	}
	if hashA != "" || hashB != "" {
		// At least one binary side: content hashes decide.
		if hashA == hashB {
			return "", nil
		}
		return binaryDiffLine(fromFile, toFile), nil
	}
	return unifiedFileDiff(splitFileLines(textA), splitFileLines(textB), fromFile, toFile)
}

// diffRead fetches one side of a one-sided diff: text content, or a hash
// when the content is not valid text, or emptiness when absent.
func (r *SvnRepo) diffRead(rev, p string, entry *Entry) (text, hash string, err error) {
	if entry == nil {
		return "", "", nil
	}
	switch entry.Type {
	case TypeDir:
		return "directory\n", "", nil
	case TypeSymlink:
		target, err := r.ReadLink(rev, p)
		if err != nil {
			return "", "", err
		}
		return "link " + target + "\n", "", nil
	}
	data, err := r.Cat(rev, p)
	if err != nil {
		return "", "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Sprintf("%x", sha1.Sum(data)), nil
	}
	return string(data), "", nil
}

func (r *SvnRepo) Ancestor(revA, revB string) (string, error) {
	a, err := r.CanonicalRev(revA)
	if err != nil {
		return "", err
	}
	b, err := r.CanonicalRev(revB)
	if err != nil {
		return "", err
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return cached(r.cache, cacheKey("ancestor", lo, hi), func() (string, error) {
		return commonAncestor(r, a, b)
	})
}

func (r *SvnRepo) Blame(rev, p string) ([]BlameInfo, error) {
	n, prefix, err := r.maprev(rev)
	if err != nil {
		return nil, err
	}
	full := svnJoin(prefix, p)
	ls, err := r.Ls(rev, p, LsOptions{Directory: true})
	if err != nil {
		return nil, err
	}
	if len(ls) != 1 || ls[0].Type != TypeFile {
		return nil, badFileType(rev, p)
	}
	return cached(r.cache, cacheKey("blame", strconv.Itoa(n), full), func() ([]BlameInfo, error) {
		return dispatchBlame(r, strconv.Itoa(n), full)
	})
}

// pathRevs serves the fallback blame engine: svnlook history already
// follows copies, reporting the path's name at each revision.
func (r *SvnRepo) pathRevs(rev, p string) ([]pathRev, error) {
	n, err := strconv.Atoi(rev)
	if err != nil {
		return nil, unknownRevision(rev)
	}
	history, err := r.history(n, p, 0)
	if err != nil {
		return nil, err
	}
	revs := make([]pathRev, len(history))
	for i, h := range history {
		revs[i] = pathRev{Rev: strconv.Itoa(h.rev), Path: h.path}
	}
	return revs, nil
}

func (r *SvnRepo) fileLines(rev, p string) ([]string, error) {
	data, err := r.catRaw(rev, p)
	if err != nil {
		return nil, err
	}
	text, err := r.decode(data)
	if err != nil {
		return nil, err
	}
	return splitFileLines(text), nil
}

func (r *SvnRepo) revMeta(rev string) (string, time.Time, error) {
	out, err := r.svnlook("info", ".", "-r", rev)
	if err != nil {
		return "", time.Time{}, err
	}
	text, err := r.decode(out)
	if err != nil {
		return "", time.Time{}, err
	}
	parts := strings.SplitN(text, "\n", 3)
	if len(parts) < 2 {
		return "", time.Time{}, fmt.Errorf("svnlook info: unexpected output %q", text)
	}
	date, err := parseSvnDate(parts[1])
	if err != nil {
		return "", time.Time{}, err
	}
	return parts[0], date, nil
}

// DumpOptions controls Dump; see `svnadmin help dump`.
type DumpOptions struct {
	// Lower and Upper bound the dumped revision range; Upper is ignored
	// without Lower. Zero values dump everything.
	Lower, Upper int
	HasLower     bool
	Incremental  bool
	Deltas       bool
}

// Dump streams the repository as an svnadmin dumpfile to w.
func (r *SvnRepo) Dump(w io.Writer, opts DumpOptions) error {
	args := []string{"dump", ".", "-q"}
	if opts.HasLower {
		args = append(args, "-r")
		if opts.Upper > 0 {
			args = append(args, fmt.Sprintf("%d:%d", opts.Lower, opts.Upper))
		} else {
			args = append(args, strconv.Itoa(opts.Lower))
		}
	}
	if opts.Incremental {
		args = append(args, "--incremental")
	}
	if opts.Deltas {
		args = append(args, "--deltas")
	}
	return runToolStream(r.path, nil, w, svnadminTool, args...)
}

// LoadOptions controls Load; see `svnadmin help load`.
type LoadOptions struct {
	IgnoreUUID bool
	ForceUUID  bool
	ParentDir  string
}

// Load reads an svnadmin dumpfile stream into the repository. Together with
// Create and Dump this is the only write path.
func (r *SvnRepo) Load(in io.Reader, opts LoadOptions) error {
	args := []string{"load", ".", "-q"}
	if opts.IgnoreUUID {
		args = append(args, "--ignore-uuid")
	}
	if opts.ForceUUID {
		args = append(args, "--force-uuid")
	}
	if opts.ParentDir != "" {
		args = append(args, "--parent-dir", opts.ParentDir)
	}
	return runToolStream(r.path, in, io.Discard, svnadminTool, args...)
}
