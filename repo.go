package anyvcs

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ScottDuckworth/go-anyvcs/internal/logstore"
)

// repoBase carries the state shared by every backend: the repository
// location, handle options, the in-memory operation cache, and the lazily
// opened persistent commit-log store under the private path. The store is
// the only resource Close releases; everything else is inert.
type repoBase struct {
	path string
	opts Options

	cache *opCache

	storeOnce sync.Once
	store     *logstore.Store
}

func newRepoBase(path string, opts Options) repoBase {
	return repoBase{
		path:  path,
		opts:  opts,
		cache: newOpCache(opts.CacheSize),
	}
}

func (b *repoBase) Path() string { return b.path }

func (b *repoBase) Close() error {
	// Consume the Once before reading store: a first lookup racing Close
	// either finishes opening the store here or finds the Once spent and
	// proceeds without one.
	b.storeOnce.Do(func() {})
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// privateSubdir creates (if needed) and returns the library's reserved
// directory relative to the repository location.
func (b *repoBase) privateSubdir(elem ...string) (string, error) {
	dir := filepath.Join(append([]string{b.path}, elem...)...)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", err
	}
	return dir, nil
}

// logStore returns the persistent commit-log entry store, opening it on
// first use. Commit data is immutable under its canonical identifier, so
// entries persist across process restarts. A store that cannot be opened
// degrades to nil; callers fall through to recomputation.
func (b *repoBase) logStore(privatePath func() (string, error)) *logstore.Store {
	b.storeOnce.Do(func() {
		dir, err := privatePath()
		if err != nil {
			slog.Debug("private path unavailable", slog.Any("error", err))
			return
		}
		store, err := logstore.Open(filepath.Join(dir, "commit-cache"))
		if err != nil {
			slog.Debug("commit-cache store unavailable", slog.Any("error", err))
			return
		}
		b.store = store
	})
	return b.store
}

// cachedLogEntry memoizes a revision's log entry through both cache layers:
// the in-memory LRU (with single-flight) and the persistent store.
func (b *repoBase) cachedLogEntry(rev string, privatePath func() (string, error), compute func() (*CommitLogEntry, error)) (*CommitLogEntry, error) {
	return cached(b.cache, cacheKey("log", rev), func() (*CommitLogEntry, error) {
		store := b.logStore(privatePath)
		if store != nil {
			if data, ok, err := store.Get(rev); err == nil && ok {
				if entry, ok := unmarshalLogEntry(data); ok {
					return entry, nil
				}
			}
		}
		entry, err := compute()
		if err != nil {
			return nil, err
		}
		if store != nil {
			if data, err := entry.marshal(); err == nil {
				if err := store.Put(rev, data); err != nil {
					slog.Debug("commit-cache store write", slog.Any("error", err))
				}
			}
		}
		return entry, nil
	})
}

// decode applies the handle's encoding policy.
func (b *repoBase) decode(data []byte) (string, error) {
	return decodeText(data, b.opts.Encoding)
}
