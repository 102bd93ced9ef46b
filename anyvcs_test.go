package anyvcs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestProbeLayouts(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, dir string)
		want  VCS
	}{
		{
			name: "git worktree",
			build: func(t *testing.T, dir string) {
				mkdirs(t, dir, ".git")
			},
			want: Git,
		},
		{
			name: "hg",
			build: func(t *testing.T, dir string) {
				mkdirs(t, dir, ".hg")
			},
			want: Hg,
		},
		{
			name: "bare git",
			build: func(t *testing.T, dir string) {
				mkdirs(t, dir, "objects", "refs", "branches")
				touch(t, dir, "config")
			},
			want: Git,
		},
		{
			name: "svn",
			build: func(t *testing.T, dir string) {
				mkdirs(t, dir, "conf", "db", "locks")
				touch(t, dir, "format")
			},
			want: Svn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.build(t, dir)
			got, err := Probe(dir)
			if err != nil {
				t.Fatalf("Probe returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Probe = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProbeRejectsUnknownLayout(t *testing.T) {
	dir := t.TempDir()
	if _, err := Probe(dir); !errors.Is(err, ErrNotRepository) {
		t.Fatalf("empty dir should fail with ErrNotRepository, got %v", err)
	}

	// A partial bare-git layout is not a repository either.
	mkdirs(t, dir, "objects", "refs")
	if _, err := Probe(dir); !errors.Is(err, ErrNotRepository) {
		t.Fatalf("partial layout should fail with ErrNotRepository, got %v", err)
	}
}

func TestProbeRejectsFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "somefile")
	if _, err := Probe(filepath.Join(dir, "somefile")); !errors.Is(err, ErrNotRepository) {
		t.Fatalf("plain file should fail with ErrNotRepository, got %v", err)
	}
}

func TestOpenVCSUnknownKind(t *testing.T) {
	if _, err := OpenVCS(t.TempDir(), VCS("cvs"), nil); !errors.Is(err, ErrUnknownVCSType) {
		t.Fatalf("unknown kind should fail with ErrUnknownVCSType, got %v", err)
	}
}

func TestCreateUnknownKind(t *testing.T) {
	if _, err := Create(t.TempDir(), VCS("cvs"), nil); !errors.Is(err, ErrUnknownVCSType) {
		t.Fatalf("unknown kind should fail with ErrUnknownVCSType, got %v", err)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	var nilOpts *Options
	opts := nilOpts.withDefaults()
	if opts.CacheSize != DefaultCacheSize {
		t.Fatalf("nil options should default the cache size, got %d", opts.CacheSize)
	}
	if len(opts.SvnBranchGlobs) == 0 || len(opts.SvnTagGlobs) == 0 {
		t.Fatal("nil options should default the svn globs")
	}

	custom := (&Options{CacheSize: 7, SvnBranchGlobs: []string{"/b/*/"}}).withDefaults()
	if custom.CacheSize != 7 || custom.SvnBranchGlobs[0] != "/b/*/" {
		t.Fatalf("explicit options should be kept: %+v", custom)
	}
}

func mkdirs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o777); err != nil {
			t.Fatal(err)
		}
	}
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0o666); err != nil {
		t.Fatal(err)
	}
}
