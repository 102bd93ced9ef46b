package anyvcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

var (
	gitFullHashRx = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	gitPrefixRx   = regexp.MustCompile(`^[0-9a-fA-F]{4,39}$`)
)

// GitRepo is the Git backend, built entirely on go-git object storage; no
// git executable is required.
type GitRepo struct {
	repoBase
	repo *gitlib.Repository
}

func openGit(p string, opts Options) (*GitRepo, error) {
	repo, err := gitlib.PlainOpen(p)
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("open %s: %w", p, ErrNotRepository)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return &GitRepo{repoBase: newRepoBase(p, opts), repo: repo}, nil
}

func createGit(p string, opts Options) (*GitRepo, error) {
	repo, err := gitlib.PlainInit(p, true)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}
	return &GitRepo{repoBase: newRepoBase(p, opts), repo: repo}, nil
}

func (r *GitRepo) Kind() VCS { return Git }

func (r *GitRepo) PrivatePath() (string, error) {
	return r.privateSubdir(".private")
}

// resolve maps a revision token to the commit it names. Full hashes are
// verified against object storage, hex prefixes are scanned for uniqueness,
// and everything else goes through go-git's revision resolver with annotated
// tags peeled to their commits.
func (r *GitRepo) resolve(token string) (*object.Commit, error) {
	if token == "" {
		return nil, unknownRevision(token)
	}
	if empty, err := r.Empty(); err != nil {
		return nil, err
	} else if empty {
		return nil, fmt.Errorf("%q: %w", token, ErrEmptyRepository)
	}

	if gitFullHashRx.MatchString(token) {
		commit, err := r.repo.CommitObject(plumbing.NewHash(strings.ToLower(token)))
		if err != nil {
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				return nil, unknownRevision(token)
			}
			return nil, err
		}
		return commit, nil
	}

	if gitPrefixRx.MatchString(token) {
		commit, err := r.resolvePrefix(strings.ToLower(token))
		if err == nil || !errors.Is(err, ErrUnknownRevision) {
			return commit, err
		}
		// A short hex string can still be a ref name ("cafe", "beef").
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(token))
	if err != nil {
		return nil, unknownRevision(token)
	}
	return r.peelToCommit(*hash, token)
}

// resolvePrefix scans commit objects for a unique hash prefix. go-git has no
// abbreviation index, so ambiguity detection needs the scan. The scan runs on
// every call: a prefix that is unique now can become ambiguous once another
// commit lands, so the answer is not a stable property of the token.
func (r *GitRepo) resolvePrefix(prefix string) (*object.Commit, error) {
	iter, err := r.repo.CommitObjects()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var found string
	err = iter.ForEach(func(c *object.Commit) error {
		if !strings.HasPrefix(c.Hash.String(), prefix) {
			return nil
		}
		if found != "" {
			return ambiguousRevision(prefix)
		}
		found = c.Hash.String()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == "" {
		return nil, unknownRevision(prefix)
	}
	return r.repo.CommitObject(plumbing.NewHash(found))
}

func (r *GitRepo) peelToCommit(hash plumbing.Hash, token string) (*object.Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err == nil {
		return commit, nil
	}
	tag, tagErr := r.repo.TagObject(hash)
	if tagErr != nil {
		return nil, unknownRevision(token)
	}
	commit, err = tag.Commit()
	if err != nil {
		return nil, unknownRevision(token)
	}
	return commit, nil
}

func (r *GitRepo) CanonicalRev(token string) (string, error) {
	commit, err := r.resolve(token)
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

func (r *GitRepo) Tip(head string) (string, error) {
	if head == "" {
		head = "HEAD"
	}
	return r.CanonicalRev(head)
}

func (r *GitRepo) Contains(token string) (bool, error) {
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

func (r *GitRepo) Empty() (bool, error) {
	_, err := r.repo.Head()
	if err == nil {
		return false, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true, nil
	}
	return false, err
}

// CommitCount is recomputed on every call: the total is a repository-wide
// aggregate, not a property of any one revision, so it cannot live in the
// per-revision cache.
func (r *GitRepo) CommitCount() (int, error) {
	if empty, err := r.Empty(); err != nil || empty {
		return 0, err
	}
	iter, err := r.repo.Log(&gitlib.LogOptions{All: true})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}

func (r *GitRepo) refNames(iter storer.ReferenceIter, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	names := []string{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *GitRepo) Branches() ([]string, error) {
	return r.refNames(r.repo.Branches())
}

func (r *GitRepo) Tags() ([]string, error) {
	return r.refNames(r.repo.Tags())
}

// Bookmarks is a Mercurial concept; Git has none.
func (r *GitRepo) Bookmarks() ([]string, error) {
	return []string{}, nil
}

func (r *GitRepo) Heads() ([]string, error) {
	branches, err := r.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}
	return append(branches, tags...), nil
}

func (r *GitRepo) Ls(rev, origPath string, opts LsOptions) ([]Entry, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	root, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	forceDir := strings.HasSuffix(origPath, "/")
	p := strings.TrimSuffix(cleanPath(origPath), "/")
	canon := commit.Hash.String()

	if p == "" {
		if opts.Directory {
			entry := Entry{Path: "/", Type: TypeDir}
			if err := r.fillEntry(&entry, filemode.Dir, plumbing.ZeroHash, canon, opts.Report); err != nil {
				return nil, err
			}
			return []Entry{entry}, nil
		}
		return r.listTree(root, "", canon, opts)
	}

	treeEntry, err := root.FindEntry(p)
	if err != nil {
		return nil, pathNotFound(rev, origPath)
	}
	if treeEntry.Mode == filemode.Dir {
		if opts.Directory {
			entry := Entry{Path: p, Type: TypeDir}
			if err := r.fillEntry(&entry, filemode.Dir, treeEntry.Hash, canon, opts.Report); err != nil {
				return nil, err
			}
			return []Entry{entry}, nil
		}
		sub, err := root.Tree(p)
		if err != nil {
			return nil, pathNotFound(rev, origPath)
		}
		return r.listTree(sub, p+"/", canon, opts)
	}
	if forceDir {
		return nil, pathNotFound(rev, origPath)
	}
	entry := Entry{Path: p}
	if err := r.fillEntry(&entry, treeEntry.Mode, treeEntry.Hash, canon, opts.Report); err != nil {
		return nil, err
	}
	return []Entry{entry}, nil
}

func (r *GitRepo) listTree(tree *object.Tree, prefix, canon string, opts LsOptions) ([]Entry, error) {
	entries := []Entry{}
	add := func(name string, mode filemode.FileMode, hash plumbing.Hash) error {
		entry := Entry{Path: prefix + name, Name: name}
		if err := r.fillEntry(&entry, mode, hash, canon, opts.Report); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	}
	if opts.Recursive {
		walker := object.NewTreeWalker(tree, true, nil)
		defer walker.Close()
		for {
			name, treeEntry, err := walker.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if treeEntry.Mode == filemode.Dir && !opts.RecursiveDirs {
				continue
			}
			if err := add(name, treeEntry.Mode, treeEntry.Hash); err != nil {
				return nil, err
			}
		}
		return entries, nil
	}
	for _, treeEntry := range tree.Entries {
		if err := add(treeEntry.Name, treeEntry.Mode, treeEntry.Hash); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *GitRepo) fillEntry(entry *Entry, mode filemode.FileMode, hash plumbing.Hash, canon string, report Report) error {
	switch mode {
	case filemode.Dir, filemode.Submodule:
		entry.Type = TypeDir
	case filemode.Symlink:
		entry.Type = TypeSymlink
		if report.has(ReportTarget) {
			data, err := r.blobBytes(hash)
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
			entry.Executable = mode == filemode.Executable
		}
		if report.has(ReportSize) {
			blob, err := r.repo.BlobObject(hash)
			if err != nil {
				return err
			}
			entry.Size = blob.Size
		}
	}
	if report.has(ReportCommit) {
		rev, err := r.lastCommitOnPath(canon, entry.Path)
		if err != nil {
			return err
		}
		entry.Commit = rev
	}
	return nil
}

// lastCommitOnPath finds the most recent commit at or before canon that
// touched the path; the repository root maps to canon itself.
func (r *GitRepo) lastCommitOnPath(canon, p string) (string, error) {
	p = strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if p == "" {
		return canon, nil
	}
	return cached(r.cache, cacheKey("pathtip", canon, p), func() (string, error) {
		iter, err := r.repo.Log(&gitlib.LogOptions{
			From:       plumbing.NewHash(canon),
			Order:      gitlib.LogOrderCommitterTime,
			PathFilter: pathFilterFor(p),
		})
		if err != nil {
			return "", err
		}
		defer iter.Close()
		commit, err := iter.Next()
		if err != nil {
			if err == io.EOF {
				return canon, nil
			}
			return "", err
		}
		return commit.Hash.String(), nil
	})
}

func pathFilterFor(p string) func(string) bool {
	prefix := p + "/"
	return func(candidate string) bool {
		return candidate == p || strings.HasPrefix(candidate, prefix)
	}
}

func (r *GitRepo) Cat(rev, p string) ([]byte, error) {
	entry, err := r.statFile(rev, p, TypeFile)
	if err != nil {
		return nil, err
	}
	return r.blobBytes(entry.Hash)
}

func (r *GitRepo) ReadLink(rev, p string) (string, error) {
	entry, err := r.statFile(rev, p, TypeSymlink)
	if err != nil {
		return "", err
	}
	data, err := r.blobBytes(entry.Hash)
	if err != nil {
		return "", err
	}
	return r.decode(data)
}

// statFile locates a non-directory entry of the wanted type.
func (r *GitRepo) statFile(rev, origPath string, want EntryType) (*object.TreeEntry, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	root, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	p := strings.TrimSuffix(cleanPath(origPath), "/")
	if p == "" {
		return nil, badFileType(rev, origPath)
	}
	treeEntry, err := root.FindEntry(p)
	if err != nil {
		return nil, pathNotFound(rev, origPath)
	}
	var got EntryType
	switch treeEntry.Mode {
	case filemode.Dir, filemode.Submodule:
		got = TypeDir
	case filemode.Symlink:
		got = TypeSymlink
	default:
		got = TypeFile
	}
	if got != want {
		return nil, badFileType(rev, origPath)
	}
	return treeEntry, nil
}

func (r *GitRepo) blobBytes(hash plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, err
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (r *GitRepo) LogEntry(rev string) (*CommitLogEntry, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return r.cachedLogEntry(commit.Hash.String(), r.PrivatePath, func() (*CommitLogEntry, error) {
		return gitLogEntry(commit), nil
	})
}

func gitLogEntry(commit *object.Commit) *CommitLogEntry {
	parents := make([]string, len(commit.ParentHashes))
	for i, h := range commit.ParentHashes {
		parents[i] = h.String()
	}
	return &CommitLogEntry{
		Rev:     commit.Hash.String(),
		Parents: parents,
		Date:    commit.Author.When,
		Author:  fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email),
		Message: commit.Message,
	}
}

func (r *GitRepo) Parents(rev string) ([]string, error) {
	entry, err := r.LogEntry(rev)
	if err != nil {
		return nil, err
	}
	return entry.Parents, nil
}

// parentRevs serves the graph algorithms; rev is already canonical there.
func (r *GitRepo) parentRevs(rev string) ([]string, error) {
	return r.Parents(rev)
}

func (r *GitRepo) Log(opts LogOptions) ([]*CommitLogEntry, error) {
	if empty, err := r.Empty(); err != nil {
		return nil, err
	} else if empty {
		if opts.To == "" && opts.From == "" {
			return []*CommitLogEntry{}, nil
		}
		return nil, ErrEmptyRepository
	}

	exclude := map[string]bool{}
	if opts.From != "" {
		from, err := r.resolve(opts.From)
		if err != nil {
			return nil, err
		}
		exclude, err = r.ancestorSet(from.Hash.String())
		if err != nil {
			return nil, err
		}
	}

	logOpts := &gitlib.LogOptions{Order: gitlib.LogOrderCommitterTime}
	if opts.To == "" {
		logOpts.All = true
	} else {
		to, err := r.resolve(opts.To)
		if err != nil {
			return nil, err
		}
		logOpts.From = to.Hash
	}
	if opts.Path != "" {
		logOpts.PathFilter = pathFilterFor(strings.TrimSuffix(cleanPath(opts.Path), "/"))
	}

	if opts.Follow && opts.Path != "" {
		start := logOpts.From
		if logOpts.All {
			head, err := r.repo.Head()
			if err != nil {
				return nil, err
			}
			start = head.Hash()
		}
		return r.logFollowPath(start.String(), strings.TrimSuffix(cleanPath(opts.Path), "/"), opts, exclude)
	}

	if opts.FirstParent {
		return r.logFirstParent(logOpts, opts, exclude)
	}

	iter, err := r.repo.Log(logOpts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var entries []*CommitLogEntry
	err = iter.ForEach(func(commit *object.Commit) error {
		if exclude[commit.Hash.String()] {
			return nil
		}
		if !mergeMatch(opts.Merges, commit.NumParents()) {
			return nil
		}
		entries = append(entries, gitLogEntry(commit))
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// logFirstParent walks the mainline chain by hand; go-git's iterator has no
// first-parent mode.
func (r *GitRepo) logFirstParent(logOpts *gitlib.LogOptions, opts LogOptions, exclude map[string]bool) ([]*CommitLogEntry, error) {
	start := logOpts.From
	if logOpts.All {
		head, err := r.repo.Head()
		if err != nil {
			return nil, err
		}
		start = head.Hash()
	}
	var entries []*CommitLogEntry
	cur := start
	for !cur.IsZero() {
		commit, err := r.repo.CommitObject(cur)
		if err != nil {
			return nil, err
		}
		if exclude[commit.Hash.String()] {
			break
		}
		keep := mergeMatch(opts.Merges, commit.NumParents())
		if keep && logOpts.PathFilter != nil {
			changes, err := r.changedPaths(commit.Hash.String())
			if err != nil {
				return nil, err
			}
			keep = false
			for _, change := range changes {
				if logOpts.PathFilter(change.Path) {
					keep = true
					break
				}
			}
		}
		if keep {
			entries = append(entries, gitLogEntry(commit))
			if opts.Limit > 0 && len(entries) >= opts.Limit {
				break
			}
		}
		if commit.NumParents() == 0 {
			break
		}
		cur = commit.ParentHashes[0]
	}
	return entries, nil
}

// logFollowPath tracks a path across copies and renames by replaying each
// mainline revision's changed paths; go-git's PathFilter matches names only
// and loses the trail at a rename.
func (r *GitRepo) logFollowPath(start, p string, opts LogOptions, exclude map[string]bool) ([]*CommitLogEntry, error) {
	history, err := pathHistoryByGraph(r, start, p, 0)
	if err != nil {
		return nil, err
	}
	var entries []*CommitLogEntry
	for _, step := range history {
		if exclude[step.Rev] {
			continue
		}
		entry, err := r.LogEntry(step.Rev)
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

func mergeMatch(filter MergeFilter, numParents int) bool {
	switch filter {
	case MergesOnly:
		return numParents > 1
	case MergesNone:
		return numParents <= 1
	}
	return true
}

// ancestorSet collects rev and every ancestor of rev.
func (r *GitRepo) ancestorSet(rev string) (map[string]bool, error) {
	seen := map[string]bool{rev: true}
	queue := []string{rev}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, err := r.parentRevs(cur)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return seen, nil
}

func (r *GitRepo) Changed(rev string) ([]FileChangeInfo, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return cached(r.cache, cacheKey("changed", commit.Hash.String()), func() ([]FileChangeInfo, error) {
		return r.changedOf(commit)
	})
}

func (r *GitRepo) changedPaths(rev string) ([]FileChangeInfo, error) {
	return r.Changed(rev)
}

func (r *GitRepo) changedOf(commit *object.Commit) ([]FileChangeInfo, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	if commit.NumParents() == 0 {
		// Root commit: everything in the tree is an addition.
		var changes []FileChangeInfo
		err := tree.Files().ForEach(func(f *object.File) error {
			changes = append(changes, FileChangeInfo{Path: f.Name, Kind: ChangeAdded})
			return nil
		})
		return changes, err
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, err
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	diffs, err := object.DiffTreeWithOptions(context.Background(), parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, err
	}
	return mapGitChanges(diffs)
}

func mapGitChanges(diffs object.Changes) ([]FileChangeInfo, error) {
	changes := make([]FileChangeInfo, 0, len(diffs))
	for _, d := range diffs {
		action, err := d.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Insert:
			changes = append(changes, FileChangeInfo{Path: d.To.Name, Kind: ChangeAdded})
		case merkletrie.Delete:
			changes = append(changes, FileChangeInfo{Path: d.From.Name, Kind: ChangeRemoved})
		case merkletrie.Modify:
			if d.From.Name != d.To.Name {
				changes = append(changes, FileChangeInfo{Path: d.To.Name, Kind: ChangeCopied, CopyFrom: d.From.Name})
			} else {
				changes = append(changes, FileChangeInfo{Path: d.To.Name, Kind: ChangeModified})
			}
		}
	}
	return changes, nil
}

func (r *GitRepo) ParentDiff(rev string) (string, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return "", err
	}
	if commit.NumParents() == 0 {
		return r.rootCommitDiff(commit)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "", err
	}
	return r.treeDiff(parent, commit, "")
}

// rootCommitDiff synthesizes the diff of a parentless commit: every file as
// an addition from nothing.
func (r *GitRepo) rootCommitDiff(commit *object.Commit) (string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return "", err
	}
	var out strings.Builder
	err = tree.Files().ForEach(func(f *object.File) error {
		isBinary, err := f.IsBinary()
		if err != nil {
			return err
		}
		if isBinary {
			out.WriteString(binaryDiffLine("/dev/null", "b/"+f.Name))
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return err
		}
		text, err := unifiedFileDiff(nil, splitFileLines(content), "/dev/null", "b/"+f.Name)
		if err != nil {
			return err
		}
		out.WriteString(text)
		return nil
	})
	return out.String(), err
}

func (r *GitRepo) Diff(revA, revB, p string) (string, error) {
	from, err := r.resolve(revA)
	if err != nil {
		return "", err
	}
	to, err := r.resolve(revB)
	if err != nil {
		return "", err
	}
	return r.treeDiff(from, to, strings.TrimSuffix(cleanPath(p), "/"))
}

// treeDiff renders the unified diff between two commits' trees. A non-empty
// scope limits output to that path before patches are generated, so the cost
// tracks the scope, not the whole tree.
func (r *GitRepo) treeDiff(from, to *object.Commit, scope string) (string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return "", err
	}
	toTree, err := to.Tree()
	if err != nil {
		return "", err
	}
	diffs, err := object.DiffTreeWithOptions(context.Background(), fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	match := func(string) bool { return true }
	if scope != "" {
		match = pathFilterFor(scope)
	}
	for _, d := range diffs {
		if !match(d.From.Name) && !match(d.To.Name) {
			continue
		}
		patch, err := d.PatchContext(context.Background())
		if err != nil {
			return "", err
		}
		out.WriteString(patch.String())
	}
	return out.String(), nil
}

func (r *GitRepo) Ancestor(revA, revB string) (string, error) {
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

func (r *GitRepo) Blame(rev, p string) ([]BlameInfo, error) {
	canon, err := r.CanonicalRev(rev)
	if err != nil {
		return nil, err
	}
	clean := strings.TrimSuffix(cleanPath(p), "/")
	if _, err := r.statFile(canon, clean, TypeFile); err != nil {
		return nil, err
	}
	return cached(r.cache, cacheKey("blame", canon, clean), func() ([]BlameInfo, error) {
		return dispatchBlame(r, canon, clean)
	})
}

func (r *GitRepo) blameNative(rev, p string) ([]BlameInfo, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	result, err := gitlib.Blame(commit, p)
	if err != nil {
		return nil, err
	}
	lines := make([]BlameInfo, len(result.Lines))
	for i, line := range result.Lines {
		lines[i] = BlameInfo{
			Rev:    line.Hash.String(),
			Author: fmt.Sprintf("%s <%s>", line.AuthorName, line.Author),
			Date:   line.Date,
			Line:   strings.TrimSuffix(line.Text, "\n"),
		}
	}
	return lines, nil
}
