// Package chain implements the full blockchain engine: block ingestion,
// validation, fork choice by cumulative work, and reorganization over the
// authenticated account state.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/meridian-chain/meridian/foundation/blockchain/accounts"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/meridian-chain/meridian/foundation/blockchain/trie"
	"github.com/meridian-chain/meridian/foundation/events"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// ErrInvalidBlock categorizes every validation failure a pushed block
// can produce.
var ErrInvalidBlock = errors.New("invalid block")

// maxOrphans bounds the orphan pool by parent hash groups; the least
// recently used parent group is evicted once the cap is reached.
const maxOrphans = 512

// maxFutureTime is how far ahead of local time a block timestamp may be.
const maxFutureTime = 10 * time.Minute

// =============================================================================

// PushResult reports what happened to a block handed to PushBlock.
type PushResult int

// The complete set of push outcomes.
const (
	Invalid PushResult = iota
	Orphan
	Known
	Accepted
	Extended
	Forked
)

// String implements the fmt.Stringer interface for logging.
func (pr PushResult) String() string {
	switch pr {
	case Invalid:
		return "INVALID"
	case Orphan:
		return "ORPHAN"
	case Known:
		return "KNOWN"
	case Accepted:
		return "ACCEPTED"
	case Extended:
		return "EXTENDED"
	case Forked:
		return "FORKED"
	}
	return "UNKNOWN"
}

// HeadChange is published every time the main chain head moves.
type HeadChange struct {
	Head          database.Block
	HeadHash      database.Hash
	RebranchDepth int
}

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a chain.
type Config struct {
	KV        kvstore.Store
	Genesis   genesis.Genesis
	EvHandler EventHandler
}

// Chain manages the block tree, the account state, and the main chain
// head. All mutations are serialized through an internal lock. Head,
// HeadHash, and NextTarget take that same lock, so they wait for an
// in-progress PushBlock to finish; GetBlock and OnMainChain read the store
// without it.
type Chain struct {
	mu sync.Mutex

	kv          kvstore.Store
	store       *database.ChainDataStore
	accounts    *accounts.Accounts
	genesis     genesis.Genesis
	genesisHash database.Hash

	head     database.Block
	headHash database.Hash
	headWork *big.Int

	orphans   *lru.Cache[database.Hash, []database.Block]
	evHandler EventHandler

	headChanged *events.Hub[HeadChange]
	blockAdded  *events.Hub[database.Block]
}

// New constructs the chain over the specified KV store, creating the
// genesis state when the store is empty.
func New(cfg Config) (*Chain, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	tree, err := trie.New(cfg.KV)
	if err != nil {
		return nil, err
	}

	orphans, err := lru.New[database.Hash, []database.Block](maxOrphans)
	if err != nil {
		return nil, err
	}

	c := Chain{
		kv:          cfg.KV,
		store:       database.NewChainDataStore(cfg.KV),
		accounts:    accounts.New(tree, cfg.Genesis),
		genesis:     cfg.Genesis,
		orphans:     orphans,
		evHandler:   ev,
		headChanged: events.NewHub[HeadChange](),
		blockAdded:  events.NewHub[database.Block](),
	}

	headHash, err := c.store.Head()
	if err != nil {
		return nil, err
	}

	if headHash.IsZero() {
		if err := c.bootstrap(tree); err != nil {
			return nil, err
		}
	} else {
		cd, err := c.store.Get(headHash)
		if err != nil {
			return nil, err
		}
		if cd == nil {
			return nil, errors.New("head block missing from store")
		}
		if cd.Block.Header.AccountsHash != tree.Hash() {
			return nil, errors.New("account state does not match head block")
		}

		c.head = cd.Block
		c.headHash = headHash
		c.headWork = cd.TotalWork
	}

	genesisBlock := c.head
	for genesisBlock.Header.Height > 0 {
		cd, err := c.store.Get(genesisBlock.Header.PrevHash)
		if err != nil {
			return nil, err
		}
		if cd == nil {
			return nil, errors.New("chain store is missing an ancestor")
		}
		genesisBlock = cd.Block
	}
	c.genesisHash = genesisBlock.Hash()

	ev("chain: new: head[%s] height[%d]", c.headHash, c.head.Header.Height)

	return &c, nil
}

// bootstrap seeds the account state from the genesis balances and writes
// the deterministic genesis block.
func (c *Chain) bootstrap(tree *trie.Tree) error {
	balances, err := c.genesis.AccountBalances()
	if err != nil {
		return err
	}

	session, err := tree.Transaction()
	if err != nil {
		return err
	}
	for addr, balance := range balances {
		if err := session.Put(addr, database.Account{Balance: balance}); err != nil {
			session.Abort()
			return err
		}
	}
	if err := session.Commit(); err != nil {
		return err
	}

	body := database.BlockBody{}
	block := database.Block{
		Header: database.BlockHeader{
			InterlinkHash: database.Interlink{}.Hash(),
			BodyHash:      body.Hash(),
			AccountsHash:  tree.Hash(),
			NBits:         c.genesis.InitialNBits,
			TimeStamp:     uint32(c.genesis.Date.UTC().Unix()),
		},
		Body: &body,
	}

	hash := block.Hash()
	cd := database.ChainData{
		Block:       block,
		TotalWork:   database.BlockWork(block.Header.NBits),
		OnMainChain: true,
	}

	batch, err := c.store.BeginBatch()
	if err != nil {
		return err
	}
	if err := batch.Put(hash, cd); err != nil {
		batch.Abort()
		return err
	}
	if err := batch.SetHead(hash); err != nil {
		batch.Abort()
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	c.head = block
	c.headHash = hash
	c.headWork = cd.TotalWork

	c.evHandler("chain: bootstrap: genesis[%s]", hash)

	return nil
}

// =============================================================================

// Accounts returns the account state façade. Callers treat it read-only;
// mutations flow exclusively through PushBlock.
func (c *Chain) Accounts() *accounts.Accounts {
	return c.accounts
}

// Genesis returns the genesis configuration.
func (c *Chain) Genesis() genesis.Genesis {
	return c.genesis
}

// GenesisHash returns the hash of the genesis block.
func (c *Chain) GenesisHash() database.Hash {
	return c.genesisHash
}

// Head returns a snapshot of the current main chain head block.
func (c *Chain) Head() database.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.head
}

// HeadHash returns the hash of the current main chain head.
func (c *Chain) HeadHash() database.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.headHash
}

// GetBlock returns the block stored for the specified hash, or nil when
// the chain has never accepted it.
func (c *Chain) GetBlock(hash database.Hash) (*database.Block, error) {
	cd, err := c.store.Get(hash)
	if err != nil {
		return nil, err
	}
	if cd == nil {
		return nil, nil
	}

	return &cd.Block, nil
}

// OnMainChain reports whether the specified block currently sits on the
// main chain.
func (c *Chain) OnMainChain(hash database.Hash) (bool, error) {
	cd, err := c.store.Get(hash)
	if err != nil {
		return false, err
	}

	return cd != nil && cd.OnMainChain, nil
}

// SubscribeHeadChanged registers for head movement events.
func (c *Chain) SubscribeHeadChanged(fn func(HeadChange)) {
	c.headChanged.Subscribe(fn)
}

// SubscribeBlockAdded registers for block acceptance events.
func (c *Chain) SubscribeBlockAdded(fn func(database.Block)) {
	c.blockAdded.Subscribe(fn)
}

// NextTarget computes the proof of work target for the block following
// the current head.
func (c *Chain) NextTarget() (uint32, error) {
	c.mu.Lock()
	head := c.head
	c.mu.Unlock()

	return c.nextTarget(head)
}

// =============================================================================

// event is a deferred notification: publication happens after the chain
// lock is released so subscribers can read the chain freely.
type event struct {
	added *database.Block
	head  *HeadChange
}

func (c *Chain) publish(evts []event) {
	for _, e := range evts {
		if e.added != nil {
			c.blockAdded.Publish(*e.added)
		}
		if e.head != nil {
			c.headChanged.Publish(*e.head)
		}
	}
}

func storageErr(err error) error {
	return fmt.Errorf("chain storage: %w", err)
}

// beginSession opens an accounts session, waiting out a transiently busy
// tree. The only other writer is the miner's dry run, which holds its
// transaction for a single body application before aborting.
func (c *Chain) beginSession() (*accounts.Session, error) {
	for {
		session, err := c.accounts.Begin()
		if !errors.Is(err, trie.ErrTxBusy) {
			return session, err
		}
		time.Sleep(time.Millisecond)
	}
}
