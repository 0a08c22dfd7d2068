package database

import (
	"fmt"

	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// Key ranges inside the shared KV store.
const (
	chainDataPrefix = "chaindata/"
	headKey         = "chaindata/head"
)

// ChainDataStore is the persistent map from block hash to ChainData plus
// the head pointer. It is an incrementally maintained index over data that
// could be rebuilt from the block bodies.
type ChainDataStore struct {
	kv kvstore.Store
}

// NewChainDataStore constructs a store over the specified KV backend.
func NewChainDataStore(kv kvstore.Store) *ChainDataStore {
	return &ChainDataStore{kv: kv}
}

// Get loads the chain data for the specified block hash. A block the store
// has never seen returns nil.
func (cds *ChainDataStore) Get(hash Hash) (*ChainData, error) {
	data, err := cds.kv.Get(chainDataKey(hash))
	if err != nil {
		return nil, fmt.Errorf("chain data read: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	cd, err := DeserializeChainData(data)
	if err != nil {
		return nil, fmt.Errorf("chain data decode: %w", err)
	}

	return &cd, nil
}

// Put writes the chain data for a block outside of any batch.
func (cds *ChainDataStore) Put(hash Hash, cd ChainData) error {
	return cds.kv.Put(chainDataKey(hash), cd.Serialize())
}

// Head returns the hash the head pointer names, or a zero hash when the
// store is empty.
func (cds *ChainDataStore) Head() (Hash, error) {
	data, err := cds.kv.Get([]byte(headKey))
	if err != nil {
		return Hash{}, fmt.Errorf("head read: %w", err)
	}
	if data == nil {
		return Hash{}, nil
	}

	var h Hash
	copy(h[:], data)
	return h, nil
}

// SetHead moves the head pointer outside of any batch.
func (cds *ChainDataStore) SetHead(hash Hash) error {
	return cds.kv.Put([]byte(headKey), hash[:])
}

// BeginBatch opens an atomic batch of chain data writes. All writes land
// together on Commit or not at all.
func (cds *ChainDataStore) BeginBatch() (*Batch, error) {
	tx, err := cds.kv.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("chain data batch: %w", err)
	}

	return &Batch{tx: tx}, nil
}

func chainDataKey(hash Hash) []byte {
	return append([]byte(chainDataPrefix), hash[:]...)
}

// =============================================================================

// Batch accumulates chain data writes for one atomic commit.
type Batch struct {
	tx kvstore.Tx
}

// NewBatch wraps a caller-owned KV transaction so chain data writes can be
// bundled atomically with writes from other subsystems.
func NewBatch(tx kvstore.Tx) *Batch {
	return &Batch{tx: tx}
}

// Get loads chain data through the batch, observing its pending writes.
func (b *Batch) Get(hash Hash) (*ChainData, error) {
	data, err := b.tx.Get(chainDataKey(hash))
	if err != nil {
		return nil, fmt.Errorf("chain data read: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	cd, err := DeserializeChainData(data)
	if err != nil {
		return nil, fmt.Errorf("chain data decode: %w", err)
	}

	return &cd, nil
}

// Put stages the chain data for a block.
func (b *Batch) Put(hash Hash, cd ChainData) error {
	return b.tx.Put(chainDataKey(hash), cd.Serialize())
}

// SetHead stages a head pointer move.
func (b *Batch) SetHead(hash Hash) error {
	return b.tx.Put([]byte(headKey), hash[:])
}

// Commit applies every staged write atomically.
func (b *Batch) Commit() error {
	return b.tx.Commit()
}

// Abort discards every staged write.
func (b *Batch) Abort() {
	b.tx.Abort()
}
