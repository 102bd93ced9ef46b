package anyvcs

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const hgTool = "hg"

var (
	hgFullHashRx = regexp.MustCompile(`^[0-9a-f]{40}$`)
	hgManifestRx = regexp.MustCompile(`^([0-9a-f]{40}) ([0-7]{3}) (.) (.+)$`)
	hgHeadLineRx = regexp.MustCompile(`^(?i)(.+?)\s+-?\d+:[0-9a-f]+`)
	hgBookmarkRx = regexp.MustCompile(`^(?i)\s+(?:\*\s+)?(.+?)\s+-?\d+:[0-9a-f]+`)
	hgAnnotateRx = regexp.MustCompile(`^(.*?)\s+(\d+): `)
)

// hgLogTemplate renders one record per commit, fields NUL-separated and
// records terminated by a double NUL. tabindent keeps multi-line messages
// unambiguous; parents under --debug always carries both slots.
const hgLogTemplate = `{node}\0{parents}\0{date|hgdate}\0{author|nonempty}\0{desc|tabindent|nonempty}\0\0`

// HgRepo is the Mercurial backend, driven through the hg executable.
type HgRepo struct {
	repoBase
}

func openHg(p string, opts Options) (*HgRepo, error) {
	if !isDir(p) {
		return nil, fmt.Errorf("open %s: %w", p, ErrNotRepository)
	}
	return &HgRepo{repoBase: newRepoBase(p, opts)}, nil
}

func createHg(p string, opts Options) (*HgRepo, error) {
	if _, err := runToolOut("", hgTool, "init", p); err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}
	return &HgRepo{repoBase: newRepoBase(p, opts)}, nil
}

func (r *HgRepo) Kind() VCS { return Hg }

// PrivatePath lives under .hg so it can never collide with tracked files.
func (r *HgRepo) PrivatePath() (string, error) {
	return r.privateSubdir(".hg", ".private")
}

func (r *HgRepo) hg(args ...string) ([]byte, error) {
	return runToolOut(r.path, hgTool, args...)
}

// resolve maps a token to the full 40-hex changeset id. Only full hashes are
// memoized: names like "tip", branches, and abbreviated ids can point at a
// different changeset after the next commit, so they resolve fresh each call.
func (r *HgRepo) resolve(token string) (string, error) {
	if token == "" {
		return "", unknownRevision(token)
	}
	if hgFullHashRx.MatchString(token) {
		return cached(r.cache, cacheKey("rev", token), func() (string, error) {
			return r.resolveToken(token)
		})
	}
	return r.resolveToken(token)
}

func (r *HgRepo) resolveToken(token string) (string, error) {
	if empty, err := r.Empty(); err != nil {
		return "", err
	} else if empty {
		return "", fmt.Errorf("%q: %w", token, ErrEmptyRepository)
	}
	out, err := r.hg("log", "--template={node}", "-r", token)
	if err != nil {
		if resolveErr := classifyHgResolveError(token, toolStderr(err)); resolveErr != nil {
			return "", resolveErr
		}
		return "", err
	}
	node := strings.TrimSpace(string(out))
	if !hgFullHashRx.MatchString(node) {
		return "", unknownRevision(token)
	}
	return node, nil
}

// classifyHgResolveError maps hg's lookup stderr onto the error taxonomy,
// or returns nil when the failure is not a lookup failure.
func classifyHgResolveError(token, stderr string) error {
	switch {
	case strings.Contains(stderr, "ambiguous identifier"):
		return ambiguousRevision(token)
	case strings.Contains(stderr, "unknown revision"),
		strings.Contains(stderr, "abort:"):
		return unknownRevision(token)
	}
	return nil
}

func (r *HgRepo) CanonicalRev(token string) (string, error) {
	return r.resolve(token)
}

func (r *HgRepo) Tip(head string) (string, error) {
	if head == "" {
		head = "tip"
	}
	return r.resolve(head)
}

func (r *HgRepo) Contains(token string) (bool, error) {
	_, err := r.resolve(token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnknownRevision), errors.Is(err, ErrEmptyRepository):
		return false, nil
	default:
		return false, err
	}
}

func (r *HgRepo) Empty() (bool, error) {
	out, err := r.hg("log", "--template=a", "-l1")
	if err != nil {
		return false, err
	}
	return len(out) == 0, nil
}

func (r *HgRepo) CommitCount() (int, error) {
	out, err := r.hg("id", "-n", "-r", "tip")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("hg id: %w", err)
	}
	return n + 1, nil
}

func (r *HgRepo) parseHeadNames(args ...string) ([]string, error) {
	out, err := r.hg(args...)
	if err != nil {
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		m := hgHeadLineRx.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("hg %s: unexpected output %q", args[0], line)
		}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names, nil
}

func (r *HgRepo) Branches() ([]string, error) {
	return r.parseHeadNames("branches")
}

func (r *HgRepo) Tags() ([]string, error) {
	return r.parseHeadNames("tags")
}

func (r *HgRepo) Bookmarks() ([]string, error) {
	out, err := r.hg("bookmarks")
	if err != nil {
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(text, "no bookmarks set") {
		return []string{}, nil
	}
	names := []string{}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		m := hgBookmarkRx.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("hg bookmarks: unexpected output %q", line)
		}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names, nil
}

func (r *HgRepo) Heads() ([]string, error) {
	branches, err := r.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}
	bookmarks, err := r.Bookmarks()
	if err != nil {
		return nil, err
	}
	return append(append(branches, tags...), bookmarks...), nil
}

type hgManifestEntry struct {
	flag byte // ' ' file, '*' executable, '@' symlink
	name string
}

// manifest lists every tracked path at a revision. The --debug form carries
// the per-file flag column the plain manifest omits.
func (r *HgRepo) manifest(canon string) ([]hgManifestEntry, error) {
	return cached(r.cache, cacheKey("manifest", canon), func() ([]hgManifestEntry, error) {
		out, err := r.hg("manifest", "--debug", "-r", canon)
		if err != nil {
			return nil, err
		}
		text, err := r.decode(out)
		if err != nil {
			return nil, err
		}
		var entries []hgManifestEntry
		for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
			if line == "" {
				continue
			}
			m := hgManifestRx.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("hg manifest: unexpected output %q", line)
			}
			entries = append(entries, hgManifestEntry{flag: m[3][0], name: m[4]})
		}
		return entries, nil
	})
}

func (r *HgRepo) Ls(rev, origPath string, opts LsOptions) ([]Entry, error) {
	canon, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	forceDir := strings.HasSuffix(origPath, "/")
	p := strings.TrimSuffix(cleanPath(origPath), "/")

	if p == "" && opts.Directory {
		entry := Entry{Path: "/", Type: TypeDir}
		if opts.Report.has(ReportCommit) {
			entry.Commit = canon
		}
		return []Entry{entry}, nil
	}

	manifest, err := r.manifest(canon)
	if err != nil {
		return nil, err
	}

	prefix := ""
	ltrim := 0
	if p != "" {
		prefix = p + "/"
		ltrim = len(p) + 1
	}

	entries := []Entry{}
	dirs := map[string]bool{}
	exists := false
	addDir := func(name string) error {
		if dirs[name] {
			return nil
		}
		dirs[name] = true
		entry := Entry{Path: prefix + name, Name: name, Type: TypeDir}
		if err := r.fillCommit(&entry, canon, opts.Report); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	}
	for _, m := range manifest {
		underPrefix := strings.HasPrefix(m.name, prefix)
		if !underPrefix && (forceDir || m.name != p) {
			continue
		}
		if opts.Directory && underPrefix {
			entry := Entry{Path: p, Type: TypeDir}
			if err := r.fillCommit(&entry, canon, opts.Report); err != nil {
				return nil, err
			}
			return []Entry{entry}, nil
		}
		exists = true
		entryName := m.name[min(ltrim, len(m.name)):]
		if i := strings.IndexByte(entryName, '/'); i >= 0 {
			if !opts.Recursive {
				if err := addDir(entryName[:i]); err != nil {
					return nil, err
				}
				continue
			}
			if opts.RecursiveDirs {
				for _, d := range parentDirs(entryName) {
					if err := addDir(d); err != nil {
						return nil, err
					}
				}
			}
		}
		entry := Entry{Path: m.name, Name: entryName}
		if m.name == p {
			entry.Name = ""
		}
		if err := r.fillFileEntry(&entry, m.flag, canon, opts.Report); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if !exists {
		return nil, pathNotFound(rev, origPath)
	}
	return entries, nil
}

// parentDirs yields every ancestor directory of a slash path, shallowest
// first.
func parentDirs(p string) []string {
	var dirs []string
	for i := strings.IndexByte(p, '/'); i >= 0; {
		dirs = append(dirs, p[:i])
		next := strings.IndexByte(p[i+1:], '/')
		if next < 0 {
			break
		}
		i += 1 + next
	}
	return dirs
}

func (r *HgRepo) fillFileEntry(entry *Entry, flag byte, canon string, report Report) error {
	switch flag {
	case '@':
		entry.Type = TypeSymlink
		if report.has(ReportTarget) {
			data, err := r.catRaw(canon, entry.Path)
			if err != nil {
				return err
			}
			target, err := r.decode(data)
			if err != nil {
				return err
			}
			entry.Target = target
		}
	default:
		entry.Type = TypeFile
		if report.has(ReportExecutable) {
			entry.Executable = flag == '*'
		}
		if report.has(ReportSize) {
			data, err := r.catRaw(canon, entry.Path)
			if err != nil {
				return err
			}
			entry.Size = int64(len(data))
		}
	}
	return r.fillCommit(entry, canon, report)
}

func (r *HgRepo) fillCommit(entry *Entry, canon string, report Report) error {
	if !report.has(ReportCommit) {
		return nil
	}
	rev, err := r.lastCommitOnPath(canon, entry.Path)
	if err != nil {
		return err
	}
	entry.Commit = rev
	return nil
}

// lastCommitOnPath asks hg for the newest ancestor of canon touching the
// path, via a revset rather than replaying the whole file log.
func (r *HgRepo) lastCommitOnPath(canon, p string) (string, error) {
	p = strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if p == "" {
		return canon, nil
	}
	return cached(r.cache, cacheKey("pathtip", canon, p), func() (string, error) {
		out, err := r.hg("log", "-l1", "--template={node}",
			"-r", fmt.Sprintf("reverse(ancestors(%s))", canon), "--", p)
		if err != nil {
			return "", err
		}
		node := strings.TrimSpace(string(out))
		if node == "" {
			return canon, nil
		}
		return node, nil
	})
}

func (r *HgRepo) catRaw(canon, p string) ([]byte, error) {
	return r.hg("cat", "-r", canon, "--", p)
}

func (r *HgRepo) Cat(rev, p string) ([]byte, error) {
	canon, clean, err := r.statFile(rev, p, TypeFile)
	if err != nil {
		return nil, err
	}
	return r.catRaw(canon, clean)
}

func (r *HgRepo) ReadLink(rev, p string) (string, error) {
	canon, clean, err := r.statFile(rev, p, TypeSymlink)
	if err != nil {
		return "", err
	}
	data, err := r.catRaw(canon, clean)
	if err != nil {
		return "", err
	}
	return r.decode(data)
}

func (r *HgRepo) statFile(rev, origPath string, want EntryType) (canon, clean string, err error) {
	canon, err = r.resolve(rev)
	if err != nil {
		return "", "", err
	}
	clean = strings.TrimSuffix(cleanPath(origPath), "/")
	ls, err := r.Ls(canon, clean, LsOptions{Directory: true})
	if err != nil {
		return "", "", err
	}
	if len(ls) != 1 || ls[0].Type != want {
		return "", "", badFileType(rev, origPath)
	}
	return canon, clean, nil
}

func (r *HgRepo) LogEntry(rev string) (*CommitLogEntry, error) {
	canon, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return r.cachedLogEntry(canon, r.PrivatePath, func() (*CommitLogEntry, error) {
		entries, err := r.logCommand("--debug", "--template="+hgLogTemplate, "-r", canon)
		if err != nil {
			return nil, err
		}
		if len(entries) != 1 {
			return nil, unknownRevision(rev)
		}
		return entries[0], nil
	})
}

func (r *HgRepo) Parents(rev string) ([]string, error) {
	entry, err := r.LogEntry(rev)
	if err != nil {
		return nil, err
	}
	return entry.Parents, nil
}

func (r *HgRepo) parentRevs(rev string) ([]string, error) {
	return r.Parents(rev)
}

func (r *HgRepo) Log(opts LogOptions) ([]*CommitLogEntry, error) {
	if empty, err := r.Empty(); err != nil {
		return nil, err
	} else if empty {
		if opts.To == "" && opts.From == "" {
			return []*CommitLogEntry{}, nil
		}
		return nil, ErrEmptyRepository
	}
	args := []string{"log", "--debug", "--template=" + hgLogTemplate}
	if opts.Limit > 0 {
		args = append(args, "-l"+strconv.Itoa(opts.Limit))
	}
	if opts.FirstParent {
		args = append(args, "--follow-first")
	}
	switch opts.Merges {
	case MergesOnly:
		args = append(args, "--only-merges")
	case MergesNone:
		args = append(args, "--no-merges")
	}
	switch {
	case opts.From == "" && opts.To == "":
		// All heads, newest first: hg's default order.
	case opts.From == "":
		to, err := r.resolve(opts.To)
		if err != nil {
			return nil, err
		}
		args = append(args, "-r", fmt.Sprintf("reverse(ancestors(%s))", to))
	case opts.To == "":
		from, err := r.resolve(opts.From)
		if err != nil {
			return nil, err
		}
		args = append(args, "-r", fmt.Sprintf("reverse(descendants(%s))", from))
	default:
		from, err := r.resolve(opts.From)
		if err != nil {
			return nil, err
		}
		to, err := r.resolve(opts.To)
		if err != nil {
			return nil, err
		}
		args = append(args, "-r", fmt.Sprintf("reverse(ancestors(%s))", to), "--prune", from)
	}
	if opts.Path != "" {
		if opts.Follow {
			args = append(args, "--follow")
		}
		args = append(args, "--", cleanPath(opts.Path))
	}
	return r.logCommand(args[1:]...)
}

func (r *HgRepo) logCommand(args ...string) ([]*CommitLogEntry, error) {
	out, err := r.hg(append([]string{"log"}, args...)...)
	if err != nil {
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	records := strings.Split(text, "\x00\x00")
	if len(records) > 0 {
		records = records[:len(records)-1]
	}
	entries := make([]*CommitLogEntry, 0, len(records))
	for _, record := range records {
		entry, err := parseHgLogRecord(record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseHgLogRecord(record string) (*CommitLogEntry, error) {
	fields := strings.SplitN(record, "\x00", 5)
	if len(fields) != 5 {
		return nil, fmt.Errorf("hg log: unexpected record %q", record)
	}
	parents := []string{}
	for _, pair := range strings.Fields(fields[1]) {
		num, node, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("hg log: unexpected parent %q", pair)
		}
		if num != "-1" {
			parents = append(parents, node)
		}
	}
	date, err := parseHgDate(fields[2])
	if err != nil {
		return nil, err
	}
	return &CommitLogEntry{
		Rev:     fields[0],
		Parents: parents,
		Date:    date,
		Author:  fields[3],
		Message: strings.ReplaceAll(fields[4], "\n\t", "\n"),
	}, nil
}

// parseHgDate parses hgdate output: unix seconds, then the offset in
// seconds west of UTC.
func parseHgDate(s string) (time.Time, error) {
	secStr, offStr, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected hgdate %q", s)
	}
	sec, err := strconv.ParseFloat(secStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected hgdate %q", s)
	}
	off, err := strconv.Atoi(offStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected hgdate %q", s)
	}
	return time.Unix(int64(sec), 0).In(time.FixedZone("", -off)), nil
}

func (r *HgRepo) Changed(rev string) ([]FileChangeInfo, error) {
	canon, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return cached(r.cache, cacheKey("changed", canon), func() ([]FileChangeInfo, error) {
		out, err := r.hg("status", "-C", "--change", canon)
		if err != nil {
			return nil, err
		}
		text, err := r.decode(out)
		if err != nil {
			return nil, err
		}
		return parseHgStatus(text)
	})
}

func (r *HgRepo) changedPaths(rev string) ([]FileChangeInfo, error) {
	return r.Changed(rev)
}

// parseHgStatus reads `hg status -C` output: a copy source follows its
// entry on an indented line, so the parse runs bottom-up.
func parseHgStatus(text string) ([]FileChangeInfo, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	var changes []FileChangeInfo
	copyFrom := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") {
			copyFrom = strings.TrimSpace(line)
			continue
		}
		status, p, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("hg status: unexpected output %q", line)
		}
		change := FileChangeInfo{Path: p}
		switch status {
		case "A":
			change.Kind = ChangeAdded
			if copyFrom != "" {
				change.Kind = ChangeCopied
				change.CopyFrom = copyFrom
			}
		case "R":
			change.Kind = ChangeRemoved
		default:
			change.Kind = ChangeModified
		}
		changes = append(changes, change)
		copyFrom = ""
	}
	// Restore file order: the walk above was reversed.
	for i, j := 0, len(changes)-1; i < j; i, j = i+1, j-1 {
		changes[i], changes[j] = changes[j], changes[i]
	}
	return changes, nil
}

func (r *HgRepo) ParentDiff(rev string) (string, error) {
	canon, err := r.resolve(rev)
	if err != nil {
		return "", err
	}
	// A one-byte template keeps log output off the patch; everything after
	// it is the diff itself.
	out, err := r.hg("log", "--template=a", "-p", "-r", canon)
	if err != nil {
		return "", err
	}
	if len(out) > 0 {
		out = out[1:]
	}
	return r.decode(out)
}

func (r *HgRepo) Diff(revA, revB, p string) (string, error) {
	a, err := r.resolve(revA)
	if err != nil {
		return "", err
	}
	b, err := r.resolve(revB)
	if err != nil {
		return "", err
	}
	args := []string{"diff", "-r", a, "-r", b}
	if p != "" {
		args = append(args, "--", cleanPath(p))
	}
	out, err := r.hg(args...)
	if err != nil {
		return "", err
	}
	return r.decode(out)
}

func (r *HgRepo) Ancestor(revA, revB string) (string, error) {
	a, err := r.resolve(revA)
	if err != nil {
		return "", err
	}
	b, err := r.resolve(revB)
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

func (r *HgRepo) Blame(rev, p string) ([]BlameInfo, error) {
	canon, clean, err := r.statFile(rev, p, TypeFile)
	if err != nil {
		return nil, err
	}
	return cached(r.cache, cacheKey("blame", canon, clean), func() ([]BlameInfo, error) {
		return dispatchBlame(r, canon, clean)
	})
}

func (r *HgRepo) blameNative(canon, p string) ([]BlameInfo, error) {
	out, err := r.hg("annotate", "-un", "-r", canon, "--", p)
	if err != nil {
		return nil, err
	}
	text, err := r.decode(out)
	if err != nil {
		return nil, err
	}
	content, err := r.catRaw(canon, p)
	if err != nil {
		return nil, err
	}
	decoded, err := r.decode(content)
	if err != nil {
		return nil, err
	}
	contentLines := splitPlainLines(decoded)

	type revInfo struct {
		node string
		date time.Time
	}
	memo := map[string]revInfo{}
	annotated := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	var result []BlameInfo
	for i, line := range annotated {
		if i >= len(contentLines) {
			break
		}
		m := hgAnnotateRx.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("hg annotate: unexpected output %q", line)
		}
		author, num := strings.TrimSpace(m[1]), m[2]
		info, ok := memo[num]
		if !ok {
			out, err := r.hg("log", `--template={node}\n{date|hgdate}`, "-r", num)
			if err != nil {
				return nil, err
			}
			node, dateStr, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
			date, err := parseHgDate(dateStr)
			if err != nil {
				return nil, err
			}
			info = revInfo{node: node, date: date}
			memo[num] = info
		}
		result = append(result, BlameInfo{
			Rev:    info.node,
			Author: author,
			Date:   info.date,
			Line:   contentLines[i],
		})
	}
	return result, nil
}
