package utils

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// DiskStore is a thin key/value wrapper around an embedded badger database.
type DiskStore struct {
	db *badger.DB
}

func OpenDiskStore(path string) (*DiskStore, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return &DiskStore{db: db}, nil
}

func (s *DiskStore) Close() error {
	return s.db.Close()
}

// Get returns nil, nil for a missing key.
func (s *DiskStore) Get(key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return val, err
}

func (s *DiskStore) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *DiskStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *DiskStore) BatchSet(entries map[string][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range entries {
		if err := wb.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// DeletePrefix removes every key starting with prefix.
func (s *DiskStore) DeletePrefix(prefix string) error {
	return s.db.DropPrefix([]byte(prefix))
}

// ForEach visits keys starting with prefix in key order. An empty prefix visits
// everything.
func (s *DiskStore) ForEach(prefix string, fn func(k []byte, v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			err := item.Value(func(v []byte) error {
				return fn(k, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
