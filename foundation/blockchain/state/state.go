// Package state is the composition root for the blockchain node: it owns
// the chain, the mempool, and the miner, and provides the API the
// application layers consume.
package state

import (
	"github.com/meridian-chain/meridian/foundation/blockchain/chain"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/meridian-chain/meridian/foundation/blockchain/mempool"
	"github.com/meridian-chain/meridian/foundation/blockchain/worker"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the node state.
type Config struct {
	MinerAddress database.Address
	KV           kvstore.Store
	Genesis      genesis.Genesis
	EvHandler    EventHandler
}

// State manages the blockchain node.
type State struct {
	evHandler EventHandler

	kv      kvstore.Store
	chain   *chain.Chain
	mempool *mempool.Mempool
	worker  *worker.Worker
}

// New constructs the full node state: chain over the KV store, mempool
// subscribed to the chain, and the miner wired to both.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	c, err := chain.New(chain.Config{
		KV:        cfg.KV,
		Genesis:   cfg.Genesis,
		EvHandler: ev,
	})
	if err != nil {
		return nil, err
	}

	mp := mempool.New(mempool.Config{
		Chain:     c,
		EvHandler: ev,
	})

	w := worker.Run(worker.Config{
		Chain:        c,
		Mempool:      mp,
		MinerAddress: cfg.MinerAddress,
		EvHandler:    ev,
	})

	return &State{
		evHandler: ev,
		kv:        cfg.KV,
		chain:     c,
		mempool:   mp,
		worker:    w,
	}, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.worker.Shutdown()
	return s.kv.Close()
}

// =============================================================================

// StartMining puts the miner to work on the current head.
func (s *State) StartMining() {
	s.worker.StartWork()
}

// StopMining halts the miner.
func (s *State) StopMining() {
	s.worker.StopWork()
}

// IsMining reports whether the miner is in the working state.
func (s *State) IsMining() bool {
	return s.worker.Working()
}

// SubmitTransaction hands a transaction to the mempool.
func (s *State) SubmitTransaction(tx database.Tx) (mempool.PushResult, error) {
	return s.mempool.PushTransaction(tx)
}

// ProcessBlock hands a block received from a peer to the chain.
func (s *State) ProcessBlock(block database.Block) (chain.PushResult, error) {
	return s.chain.PushBlock(block)
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.chain.Genesis()
}

// Head returns the current main chain head block.
func (s *State) Head() database.Block {
	return s.chain.Head()
}

// HeadHash returns the hash of the current main chain head.
func (s *State) HeadHash() database.Hash {
	return s.chain.HeadHash()
}

// Account returns the balance and nonce stored for the address.
func (s *State) Account(addr database.Address) (database.Account, error) {
	return s.chain.Accounts().Get(addr)
}

// AccountsHash returns the commitment to the full account state.
func (s *State) AccountsHash() database.Hash {
	return s.chain.Accounts().Hash()
}

// RetrieveBlock returns the block stored for the specified hash.
func (s *State) RetrieveBlock(hash database.Hash) (*database.Block, error) {
	return s.chain.GetBlock(hash)
}

// MempoolCount returns the current number of pending transactions.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}

// Mempool returns a snapshot of the pending transactions.
func (s *State) Mempool() []database.Tx {
	return s.mempool.Copy()
}

// =============================================================================

// SubscribeHeadChanged registers for head movement events.
func (s *State) SubscribeHeadChanged(fn func(chain.HeadChange)) {
	s.chain.SubscribeHeadChanged(fn)
}

// SubscribeBlockAdded registers for block acceptance events.
func (s *State) SubscribeBlockAdded(fn func(database.Block)) {
	s.chain.SubscribeBlockAdded(fn)
}

// SubscribeBlockMined registers for successfully mined blocks.
func (s *State) SubscribeBlockMined(fn func(database.Block)) {
	s.worker.SubscribeBlockMined(fn)
}

// SubscribeHashrateChanged registers for the miner's hashrate estimate.
func (s *State) SubscribeHashrateChanged(fn func(float64)) {
	s.worker.SubscribeHashrateChanged(fn)
}
