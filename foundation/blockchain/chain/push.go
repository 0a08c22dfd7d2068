package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

// PushBlock runs a block through validation, stores it, and applies fork
// choice. The returned result tells the caller how the block landed; an
// error accompanies Invalid with the failing check and any result on a
// storage failure.
func (c *Chain) PushBlock(block database.Block) (PushResult, error) {
	c.mu.Lock()

	var evts []event
	result, err := c.pushBlock(block, &evts)

	c.mu.Unlock()
	c.publish(evts)

	return result, err
}

// pushBlock is the serialized implementation. Events are collected rather
// than published so subscribers never run under the chain lock.
func (c *Chain) pushBlock(block database.Block, evts *[]event) (PushResult, error) {
	hash := block.Hash()

	// Known?
	cd, err := c.store.Get(hash)
	if err != nil {
		return Invalid, storageErr(err)
	}
	if cd != nil {
		return Known, nil
	}

	// Stateless checks need nothing but the block itself.
	if err := c.validateStateless(block); err != nil {
		c.evHandler("chain: pushBlock: blk[%s]: INVALID: %s", hash, err)
		return Invalid, err
	}

	// Unknown parent: hold the block until the parent shows up.
	parent, err := c.store.Get(block.Header.PrevHash)
	if err != nil {
		return Invalid, storageErr(err)
	}
	if parent == nil {
		c.addOrphan(block)
		c.evHandler("chain: pushBlock: blk[%s]: ORPHAN: waiting on [%s]", hash, block.Header.PrevHash)
		return Orphan, nil
	}

	// Contextual checks against the parent.
	if err := c.validateContextual(block, parent); err != nil {
		c.evHandler("chain: pushBlock: blk[%s]: INVALID: %s", hash, err)
		return Invalid, err
	}

	totalWork := database.BlockWork(block.Header.NBits)
	totalWork.Add(totalWork, parent.TotalWork)

	result, err := c.applyForkChoice(block, hash, parent, totalWork, evts)
	if err != nil || result == Invalid {
		return result, err
	}

	c.evHandler("chain: pushBlock: blk[%s]: %s: height[%d] work[%d]", hash, result, block.Header.Height, totalWork)

	// The new block may be the parent an orphan has been waiting for.
	if err := c.adoptOrphans(hash, evts); err != nil {
		return result, err
	}

	return result, nil
}

// validateStateless checks everything the block proves on its own:
// commitment integrity, timestamp sanity, and proof of work.
func (c *Chain) validateStateless(block database.Block) error {
	if block.Header.InterlinkHash != block.Interlink.Hash() {
		return fmt.Errorf("%w: interlink hash does not match interlink", ErrInvalidBlock)
	}

	if block.Body != nil {
		if block.Header.BodyHash != block.Body.Hash() {
			return fmt.Errorf("%w: body hash does not match body", ErrInvalidBlock)
		}
		if len(block.Body.Transactions) > database.MaxBlockTxs {
			return fmt.Errorf("%w: too many transactions", ErrInvalidBlock)
		}
	}

	limit := time.Now().UTC().Add(maxFutureTime).Unix()
	if int64(block.Header.TimeStamp) > limit {
		return fmt.Errorf("%w: timestamp too far in the future", ErrInvalidBlock)
	}

	if !block.VerifyProofOfWork() {
		return fmt.Errorf("%w: proof of work does not meet target", ErrInvalidBlock)
	}

	return nil
}

// validateContextual checks the block against its parent and the
// difficulty schedule.
func (c *Chain) validateContextual(block database.Block, parent *database.ChainData) error {
	if block.Header.Height != parent.Block.Header.Height+1 {
		return fmt.Errorf("%w: height %d does not follow parent %d", ErrInvalidBlock, block.Header.Height, parent.Block.Header.Height)
	}

	if block.Header.TimeStamp < parent.Block.Header.TimeStamp+1 {
		return fmt.Errorf("%w: timestamp not after parent", ErrInvalidBlock)
	}

	nBits, err := c.nextTarget(parent.Block)
	if err != nil {
		return storageErr(err)
	}
	if block.Header.NBits != nBits {
		return fmt.Errorf("%w: nBits %08x, exp %08x", ErrInvalidBlock, block.Header.NBits, nBits)
	}

	return nil
}

// applyForkChoice stores the block and moves the head when the block
// extends it or proves a heavier branch.
func (c *Chain) applyForkChoice(block database.Block, hash database.Hash, parent *database.ChainData, totalWork *big.Int, evts *[]event) (PushResult, error) {
	switch {
	case block.Header.PrevHash == c.headHash:
		if err := c.extend(block, hash, parent, totalWork); err != nil {
			return Invalid, err
		}
		*evts = append(*evts, event{added: &block})
		*evts = append(*evts, event{head: &HeadChange{Head: block, HeadHash: hash}})
		return Extended, nil

	case totalWork.Cmp(c.headWork) > 0:
		depth, err := c.rebranch(block, hash, parent, totalWork)
		if err != nil {
			return Invalid, err
		}
		*evts = append(*evts, event{added: &block})
		*evts = append(*evts, event{head: &HeadChange{Head: block, HeadHash: hash, RebranchDepth: depth}})
		return Forked, nil

	default:
		cd := database.ChainData{Block: block, TotalWork: totalWork}
		if err := c.store.Put(hash, cd); err != nil {
			return Invalid, storageErr(err)
		}
		*evts = append(*evts, event{added: &block})
		return Accepted, nil
	}
}

// extend applies the block's body on top of the current head state and
// commits the state change, the chain data, and the head move in one KV
// transaction.
func (c *Chain) extend(block database.Block, hash database.Hash, parent *database.ChainData, totalWork *big.Int) error {
	if block.Body == nil {
		return fmt.Errorf("%w: body required to extend the chain", ErrInvalidBlock)
	}

	session, err := c.beginSession()
	if err != nil {
		return err
	}

	if err := session.ApplyBody(*block.Body, block.Header.Height); err != nil {
		session.Abort()
		return fmt.Errorf("%w: %s", ErrInvalidBlock, err)
	}

	if session.Hash() != block.Header.AccountsHash {
		session.Abort()
		return fmt.Errorf("%w: accounts hash mismatch, got %s, exp %s", ErrInvalidBlock, session.Hash(), block.Header.AccountsHash)
	}

	tx, err := c.kv.BeginTx()
	if err != nil {
		session.Abort()
		return storageErr(err)
	}

	if err := session.CommitInto(tx); err != nil {
		tx.Abort()
		return storageErr(err)
	}

	batch := database.NewBatch(tx)

	parentCD := *parent
	parentCD.MainChainSuccessor = &hash
	if err := batch.Put(block.Header.PrevHash, parentCD); err != nil {
		tx.Abort()
		return storageErr(err)
	}

	cd := database.ChainData{Block: block, TotalWork: totalWork, OnMainChain: true}
	if err := batch.Put(hash, cd); err != nil {
		tx.Abort()
		return storageErr(err)
	}
	if err := batch.SetHead(hash); err != nil {
		tx.Abort()
		return storageErr(err)
	}

	if err := batch.Commit(); err != nil {
		return storageErr(err)
	}

	c.head = block
	c.headHash = hash
	c.headWork = totalWork

	return nil
}

// =============================================================================

// addOrphan buffers a block under the parent hash it waits for.
func (c *Chain) addOrphan(block database.Block) {
	prev := block.Header.PrevHash
	pending, _ := c.orphans.Get(prev)

	hash := block.Hash()
	for _, b := range pending {
		if b.Hash() == hash {
			return
		}
	}

	c.orphans.Add(prev, append(pending, block))
}

// adoptOrphans re-examines blocks that were waiting on the block that just
// landed, cascading through any chains of orphans.
func (c *Chain) adoptOrphans(hash database.Hash, evts *[]event) error {
	pending, exists := c.orphans.Get(hash)
	if !exists {
		return nil
	}
	c.orphans.Remove(hash)

	for _, block := range pending {
		result, err := c.pushBlock(block, evts)
		if err != nil && result != Invalid {
			return err
		}
		c.evHandler("chain: adoptOrphans: blk[%s]: %s", block.Hash(), result)
	}

	return nil
}
