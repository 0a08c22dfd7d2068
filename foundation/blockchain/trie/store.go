package trie

import (
	"fmt"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// Key range of the accounts tree inside the shared KV store.
const (
	nodePrefix = "accountstree/"
	rootKey    = "accountstree/root"
)

// nodeStore abstracts where tree nodes live so a transaction can layer a
// buffered overlay on top of the persistent store.
type nodeStore interface {
	getNode(hash database.Hash) (*node, error)
	putNode(n *node) (database.Hash, error)
	delNode(hash database.Hash) error
}

func nodeKey(hash database.Hash) []byte {
	return append([]byte(nodePrefix), hash[:]...)
}

// =============================================================================

// kvNodeStore persists nodes directly in the KV store.
type kvNodeStore struct {
	kv kvstore.Store
}

func (s *kvNodeStore) getNode(hash database.Hash) (*node, error) {
	data, err := s.kv.Get(nodeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("tree node read: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("tree node %s missing", hash)
	}

	return deserializeNode(data)
}

func (s *kvNodeStore) putNode(n *node) (database.Hash, error) {
	hash := n.hash()
	if err := s.kv.Put(nodeKey(hash), n.serialize()); err != nil {
		return database.Hash{}, fmt.Errorf("tree node write: %w", err)
	}
	return hash, nil
}

func (s *kvNodeStore) delNode(hash database.Hash) error {
	if err := s.kv.Delete(nodeKey(hash)); err != nil {
		return fmt.Errorf("tree node delete: %w", err)
	}
	return nil
}

// =============================================================================

// overlayStore buffers node writes and deletes over a base store. Nothing
// reaches the base until the owning transaction commits.
type overlayStore struct {
	base    nodeStore
	writes  map[database.Hash]*node
	deletes map[database.Hash]struct{}
}

func newOverlayStore(base nodeStore) *overlayStore {
	return &overlayStore{
		base:    base,
		writes:  make(map[database.Hash]*node),
		deletes: make(map[database.Hash]struct{}),
	}
}

func (s *overlayStore) getNode(hash database.Hash) (*node, error) {
	if n, exists := s.writes[hash]; exists {
		return n.clone(), nil
	}
	if _, deleted := s.deletes[hash]; deleted {
		return nil, fmt.Errorf("tree node %s missing", hash)
	}

	return s.base.getNode(hash)
}

func (s *overlayStore) putNode(n *node) (database.Hash, error) {
	hash := n.hash()
	delete(s.deletes, hash)
	s.writes[hash] = n.clone()
	return hash, nil
}

func (s *overlayStore) delNode(hash database.Hash) error {
	if _, exists := s.writes[hash]; exists {
		delete(s.writes, hash)
		return nil
	}
	s.deletes[hash] = struct{}{}
	return nil
}

// flush stages every buffered change plus the new root pointer into the
// specified KV transaction.
func (s *overlayStore) flush(tx kvstore.Tx, root database.Hash) error {
	for hash, n := range s.writes {
		if err := tx.Put(nodeKey(hash), n.serialize()); err != nil {
			return fmt.Errorf("tree node write: %w", err)
		}
	}
	for hash := range s.deletes {
		if err := tx.Delete(nodeKey(hash)); err != nil {
			return fmt.Errorf("tree node delete: %w", err)
		}
	}
	if err := tx.Put([]byte(rootKey), root[:]); err != nil {
		return fmt.Errorf("tree root write: %w", err)
	}

	return nil
}
