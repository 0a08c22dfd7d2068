// Package badgerdb implements the kvstore contract on top of BadgerDB for
// persistent node storage.
package badgerdb

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// Store is a BadgerDB backed implementation of kvstore.Store.
type Store struct {
	db *badger.DB
}

// New opens the database files under the specified directory.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// Get retrieves a value by key. A missing key returns a nil value.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Put stores a key/value pair.
func (s *Store) Put(key []byte, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key/value pair.
func (s *Store) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// BeginTx starts a read/write transaction.
func (s *Store) BeginTx() (kvstore.Tx, error) {
	return &tx{txn: s.db.NewTransaction(true)}, nil
}

// Close releases all database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs the value log garbage collection. Call periodically to
// reclaim space from deleted and updated entries.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// =============================================================================

// tx adapts a badger transaction to the kvstore.Tx contract.
type tx struct {
	txn *badger.Txn
}

// Get retrieves a value by key, observing the transaction's own writes.
func (t *tx) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return item.ValueCopy(nil)
}

// Put buffers a key/value write.
func (t *tx) Put(key []byte, value []byte) error {
	return t.txn.Set(key, value)
}

// Delete buffers a key removal.
func (t *tx) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Commit atomically applies all buffered writes and deletes.
func (t *tx) Commit() error {
	return t.txn.Commit()
}

// Abort discards all buffered writes and deletes.
func (t *tx) Abort() {
	t.txn.Discard()
}
