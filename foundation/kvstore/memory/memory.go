// Package memory implements the kvstore contract in memory. Suitable for
// testing and development.
package memory

import (
	"sync"

	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// Store is an in-memory implementation of kvstore.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs a new in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key. A missing key returns a nil value.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, exists := s.data[string(key)]
	if !exists {
		return nil, nil
	}

	return append([]byte{}, val...), nil
}

// Put stores a key/value pair.
func (s *Store) Put(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[string(key)] = append([]byte{}, value...)
	return nil
}

// Delete removes a key/value pair.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, string(key))
	return nil
}

// BeginTx starts a transaction that buffers writes until Commit.
func (s *Store) BeginTx() (kvstore.Tx, error) {
	return &tx{
		store:   s,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}, nil
}

// Close releases any resources.
func (s *Store) Close() error {
	return nil
}

// =============================================================================

// tx buffers writes and deletes and applies them under the store lock
// on Commit.
type tx struct {
	store   *Store
	writes  map[string][]byte
	deletes map[string]struct{}
	done    bool
}

// Get retrieves a value by key, observing the transaction's own writes.
func (t *tx) Get(key []byte) ([]byte, error) {
	k := string(key)

	if _, deleted := t.deletes[k]; deleted {
		return nil, nil
	}
	if val, exists := t.writes[k]; exists {
		return append([]byte{}, val...), nil
	}

	return t.store.Get(key)
}

// Put buffers a key/value write.
func (t *tx) Put(key []byte, value []byte) error {
	k := string(key)

	delete(t.deletes, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

// Delete buffers a key removal.
func (t *tx) Delete(key []byte) error {
	k := string(key)

	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// Commit atomically applies all buffered writes and deletes.
func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k, v := range t.writes {
		t.store.data[k] = v
	}
	for k := range t.deletes {
		delete(t.store.data, k)
	}

	return nil
}

// Abort discards all buffered writes and deletes.
func (t *tx) Abort() {
	t.done = true
	t.writes = nil
	t.deletes = nil
}
