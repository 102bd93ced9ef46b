package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ScottDuckworth/go-anyvcs"
	"github.com/ScottDuckworth/go-anyvcs/internal/buildinfo"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("anyvcs: %v", err)
	}
}

// fileConfig is the optional TOML defaults file: encoding mode, cache
// sizing, and Subversion branch/tag layout globs.
type fileConfig struct {
	Encoding       string   `toml:"encoding"`
	CacheSize      int      `toml:"cache_size"`
	SvnBranchGlobs []string `toml:"svn_branch_globs"`
	SvnTagGlobs    []string `toml:"svn_tag_globs"`
}

func (c *fileConfig) options() (*anyvcs.Options, error) {
	opts := &anyvcs.Options{
		CacheSize:      c.CacheSize,
		SvnBranchGlobs: c.SvnBranchGlobs,
		SvnTagGlobs:    c.SvnTagGlobs,
	}
	switch c.Encoding {
	case "", "strict":
		opts.Encoding = anyvcs.EncodingStrict
	case "replace":
		opts.Encoding = anyvcs.EncodingReplace
	default:
		return nil, fmt.Errorf("unknown encoding %q (want strict or replace)", c.Encoding)
	}
	return opts, nil
}

const usage = `usage: anyvcs [flags] <command> [args]

commands:
  probe PATH                 detect the repository kind
  create TYPE PATH           create a git, hg, or svn repository
  canonical REPO REV         resolve a revision token
  tip REPO [HEAD]            canonical id of a head
  contains REPO REV          report whether a revision exists
  ls REPO REV PATH           list a directory
  cat REPO REV PATH          print file contents
  readlink REPO REV PATH     print a symlink target
  branches REPO              list branches
  tags REPO                  list tags
  bookmarks REPO             list bookmarks (hg)
  heads REPO                 list all heads
  empty REPO                 report whether the repository has commits
  count REPO                 number of commits
  log REPO                   show history
  parents REPO REV           parent revisions
  changed REPO REV           paths changed by a revision
  pdiff REPO REV             diff against the first parent
  diff REPO REVA REVB [PATH] diff two revisions
  ancestor REPO REVA REVB    most recent common ancestor
  blame REPO REV PATH        per-line attribution
  dump REPO                  svn dumpfile to stdout
  load REPO                  svn dumpfile from stdin
`

func run(args []string) error {
	fs := flag.NewFlagSet("anyvcs", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "TOML configuration file")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	showVersion := fs.Bool("version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println(buildinfo.VersionWithRevision())
		return nil
	}
	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	var cfg fileConfig
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			return fmt.Errorf("config %s: %w", *configPath, err)
		}
	}
	opts, err := cfg.options()
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("no command given")
	}
	return dispatch(rest[0], rest[1:], opts)
}

func dispatch(command string, args []string, opts *anyvcs.Options) error {
	switch command {
	case "probe":
		if len(args) != 1 {
			return fmt.Errorf("usage: probe PATH")
		}
		kind, err := anyvcs.Probe(args[0])
		if err != nil {
			return err
		}
		fmt.Println(kind)
		return nil
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: create TYPE PATH")
		}
		repo, err := anyvcs.Create(args[1], anyvcs.VCS(args[0]), opts)
		if err != nil {
			return err
		}
		return repo.Close()
	}

	if len(args) < 1 {
		return fmt.Errorf("%s: repository path required", command)
	}
	repo, err := anyvcs.Open(args[0], opts)
	if err != nil {
		return err
	}
	defer repo.Close()
	return repoCommand(repo, command, args[1:])
}

func repoCommand(repo anyvcs.Repo, command string, args []string) error {
	switch command {
	case "canonical":
		return printString1(args, command, repo.CanonicalRev)
	case "tip":
		head := ""
		if len(args) > 0 {
			head = args[0]
		}
		rev, err := repo.Tip(head)
		if err != nil {
			return err
		}
		fmt.Println(rev)
		return nil
	case "contains":
		if len(args) != 1 {
			return fmt.Errorf("usage: contains REPO REV")
		}
		ok, err := repo.Contains(args[0])
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	case "ls":
		return lsCommand(repo, args)
	case "cat":
		if len(args) != 2 {
			return fmt.Errorf("usage: cat REPO REV PATH")
		}
		data, err := repo.Cat(args[0], args[1])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "readlink":
		if len(args) != 2 {
			return fmt.Errorf("usage: readlink REPO REV PATH")
		}
		target, err := repo.ReadLink(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(target)
		return nil
	case "branches":
		return printList(repo.Branches)
	case "tags":
		return printList(repo.Tags)
	case "bookmarks":
		return printList(repo.Bookmarks)
	case "heads":
		return printList(repo.Heads)
	case "empty":
		empty, err := repo.Empty()
		if err != nil {
			return err
		}
		fmt.Println(empty)
		return nil
	case "count":
		n, err := repo.CommitCount()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	case "log":
		return logCommand(repo, args)
	case "parents":
		if len(args) != 1 {
			return fmt.Errorf("usage: parents REPO REV")
		}
		parents, err := repo.Parents(args[0])
		if err != nil {
			return err
		}
		for _, parent := range parents {
			fmt.Println(parent)
		}
		return nil
	case "changed":
		if len(args) != 1 {
			return fmt.Errorf("usage: changed REPO REV")
		}
		changes, err := repo.Changed(args[0])
		if err != nil {
			return err
		}
		for _, change := range changes {
			if change.Kind == anyvcs.ChangeCopied {
				fmt.Printf("%s\t%s\t(from %s)\n", change.Kind, change.Path, change.CopyFrom)
			} else {
				fmt.Printf("%s\t%s\n", change.Kind, change.Path)
			}
		}
		return nil
	case "pdiff":
		if len(args) != 1 {
			return fmt.Errorf("usage: pdiff REPO REV")
		}
		diff, err := repo.ParentDiff(args[0])
		if err != nil {
			return err
		}
		fmt.Print(diff)
		return nil
	case "diff":
		if len(args) != 2 && len(args) != 3 {
			return fmt.Errorf("usage: diff REPO REVA REVB [PATH]")
		}
		p := ""
		if len(args) == 3 {
			p = args[2]
		}
		diff, err := repo.Diff(args[0], args[1], p)
		if err != nil {
			return err
		}
		fmt.Print(diff)
		return nil
	case "ancestor":
		if len(args) != 2 {
			return fmt.Errorf("usage: ancestor REPO REVA REVB")
		}
		rev, err := repo.Ancestor(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(rev)
		return nil
	case "blame":
		if len(args) != 2 {
			return fmt.Errorf("usage: blame REPO REV PATH")
		}
		lines, err := repo.Blame(args[0], args[1])
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Printf("%s\t%s\t%s\t%s\n",
				shortRev(line.Rev), line.Author, line.Date.Format("2006-01-02"), line.Line)
		}
		return nil
	case "dump":
		svn, ok := repo.(*anyvcs.SvnRepo)
		if !ok {
			return fmt.Errorf("dump: not a Subversion repository")
		}
		return svn.Dump(os.Stdout, anyvcs.DumpOptions{})
	case "load":
		svn, ok := repo.(*anyvcs.SvnRepo)
		if !ok {
			return fmt.Errorf("load: not a Subversion repository")
		}
		return svn.Load(os.Stdin, anyvcs.LoadOptions{})
	}
	return fmt.Errorf("unknown command %q", command)
}

func lsCommand(repo anyvcs.Repo, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	recursive := fs.Bool("recursive", false, "list subdirectories recursively")
	dirs := fs.Bool("dirs", false, "include directories in recursive listings")
	directory := fs.Bool("directory", false, "list the path itself, not its contents")
	report := fs.String("report", "", "extra fields: comma-separated size,target,executable,commit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: ls REPO [flags] REV PATH")
	}
	opts := anyvcs.LsOptions{
		Recursive:     *recursive || *dirs,
		RecursiveDirs: *dirs,
		Directory:     *directory,
	}
	for _, field := range strings.Split(*report, ",") {
		switch strings.TrimSpace(field) {
		case "":
		case "size":
			opts.Report |= anyvcs.ReportSize
		case "target":
			opts.Report |= anyvcs.ReportTarget
		case "executable":
			opts.Report |= anyvcs.ReportExecutable
		case "commit":
			opts.Report |= anyvcs.ReportCommit
		default:
			return fmt.Errorf("unknown report field %q", field)
		}
	}
	entries, err := repo.Ls(rest[0], rest[1], opts)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%s\t%s", entry.Type, entry.Path)
		if opts.Report&anyvcs.ReportSize != 0 && entry.Type == anyvcs.TypeFile {
			line += fmt.Sprintf("\t%d", entry.Size)
		}
		if opts.Report&anyvcs.ReportTarget != 0 && entry.Type == anyvcs.TypeSymlink {
			line += "\t-> " + entry.Target
		}
		if opts.Report&anyvcs.ReportCommit != 0 {
			line += "\t" + shortRev(entry.Commit)
		}
		fmt.Println(line)
	}
	return nil
}

func logCommand(repo anyvcs.Repo, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	from := fs.String("from", "", "exclude this revision and its ancestors")
	to := fs.String("to", "", "start from this revision (default: all heads)")
	limit := fs.Int("limit", 0, "maximum number of entries (0 = unlimited)")
	firstParent := fs.Bool("first-parent", false, "follow only the first parent of merges")
	merges := fs.String("merges", "", "filter merges: only or none")
	path := fs.String("path", "", "only commits touching this path")
	follow := fs.Bool("follow", false, "follow the path across renames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := anyvcs.LogOptions{
		From:        *from,
		To:          *to,
		Limit:       *limit,
		FirstParent: *firstParent,
		Path:        *path,
		Follow:      *follow,
	}
	switch *merges {
	case "":
	case "only":
		opts.Merges = anyvcs.MergesOnly
	case "none":
		opts.Merges = anyvcs.MergesNone
	default:
		return fmt.Errorf("unknown merges filter %q (want only or none)", *merges)
	}
	entries, err := repo.Log(opts)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s %s %s %s\n",
			shortRev(entry.Rev), entry.Date.Format("2006-01-02"), entry.Author, entry.Subject())
	}
	return nil
}

func printString1(args []string, command string, op func(string) (string, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s REPO REV", command)
	}
	out, err := op(args[0])
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func printList(op func() ([]string, error)) error {
	items, err := op()
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Println(item)
	}
	return nil
}

func shortRev(rev string) string {
	if len(rev) == 40 {
		return rev[:12]
	}
	return rev
}
