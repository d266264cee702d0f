package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("playlist:")

// BadgerStore keeps playlists in an embedded badger database under
// "playlist:<id>" keys.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database in path. An empty
// path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(key string) []byte {
	return append(append([]byte(nil), badgerPrefix...), key...)
}

// Load implements orchestrator.Store.
func (s *BadgerStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, true, nil
}

// Save implements orchestrator.Store.
func (s *BadgerStore) Save(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Delete implements orchestrator.Store.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// List implements orchestrator.Store. Keys come back in byte order.
func (s *BadgerStore) List(_ context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(badgerPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }
