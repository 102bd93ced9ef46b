// Package logstore persists immutable per-revision records under a
// repository's private storage path. Records never change once written
// (commit data is content-addressed or append-only), so the store needs no
// invalidation, only a Get/Put surface.
package logstore

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) a store rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = false
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open log store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Get returns the record stored under key, reporting presence explicitly.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read log store key %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores a record under key.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("write log store key %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
