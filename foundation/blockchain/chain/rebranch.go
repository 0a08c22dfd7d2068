package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

var errMissingAncestor = errors.New("chain store is missing an ancestor")

// rebranch reorganizes the main chain onto the heavier branch ending in
// the specified block. The account state walks backward from the old head
// to the fork point and forward to the new head inside one accounts
// session, so a failure anywhere leaves the original chain fully intact.
// It returns the number of blocks reverted.
func (c *Chain) rebranch(block database.Block, hash database.Hash, parent *database.ChainData, totalWork *big.Int) (int, error) {
	c.evHandler("chain: rebranch: blk[%s]: competing branch is heavier", hash)

	// Walk the fork branch back to the most recent block it shares with
	// the main chain. Every stored ancestor off the main chain belongs to
	// the branch being switched in.
	forkBlocks := []database.Block{block}
	cur := parent
	for !cur.OnMainChain {
		forkBlocks = append([]database.Block{cur.Block}, forkBlocks...)
		prev, err := c.store.Get(cur.Block.Header.PrevHash)
		if err != nil {
			return 0, storageErr(err)
		}
		if prev == nil {
			return 0, storageErr(errMissingAncestor)
		}
		cur = prev
	}
	lca := cur
	lcaHash := lca.Block.Hash()

	// Blocks being switched in need bodies to replay.
	for _, b := range forkBlocks {
		if b.Body == nil {
			return 0, fmt.Errorf("%w: body missing on branch block %s", ErrInvalidBlock, b.Hash())
		}
	}

	// Walk the old main chain from the head down to the fork point.
	var revertChain []*database.ChainData
	curHash := c.headHash
	for curHash != lcaHash {
		cd, err := c.store.Get(curHash)
		if err != nil {
			return 0, storageErr(err)
		}
		if cd == nil {
			return 0, storageErr(errMissingAncestor)
		}
		revertChain = append(revertChain, cd)
		curHash = cd.Block.Header.PrevHash
	}

	// Replay the account state: undo the old branch, apply the new one.
	// Everything happens in one session so Abort restores the old state.
	session, err := c.beginSession()
	if err != nil {
		return 0, err
	}

	for _, cd := range revertChain {
		if err := session.RevertBody(*cd.Block.Body, cd.Block.Header.Height); err != nil {
			session.Abort()
			return 0, fmt.Errorf("revert blk[%s]: %w", cd.Block.Hash(), err)
		}
	}

	for _, b := range forkBlocks {
		if err := session.ApplyBody(*b.Body, b.Header.Height); err != nil {
			session.Abort()
			return 0, fmt.Errorf("%w: replay blk[%s]: %s", ErrInvalidBlock, b.Hash(), err)
		}
		if session.Hash() != b.Header.AccountsHash {
			session.Abort()
			return 0, fmt.Errorf("%w: accounts hash mismatch on branch block %s", ErrInvalidBlock, b.Hash())
		}
	}

	// Publish the new state, the flipped chain data, and the head move in
	// one KV transaction.
	tx, err := c.kv.BeginTx()
	if err != nil {
		session.Abort()
		return 0, storageErr(err)
	}

	if err := session.CommitInto(tx); err != nil {
		tx.Abort()
		return 0, storageErr(err)
	}

	batch := database.NewBatch(tx)

	for _, cd := range revertChain {
		flipped := *cd
		flipped.OnMainChain = false
		flipped.MainChainSuccessor = nil
		if err := batch.Put(cd.Block.Hash(), flipped); err != nil {
			tx.Abort()
			return 0, storageErr(err)
		}
	}

	// Link the fork point to the first switched-in block, then each
	// switched-in block to its successor.
	successor := forkBlocks[0].Hash()
	lcaCD := *lca
	lcaCD.MainChainSuccessor = &successor
	if err := batch.Put(lcaHash, lcaCD); err != nil {
		tx.Abort()
		return 0, storageErr(err)
	}

	for i, b := range forkBlocks {
		bHash := b.Hash()

		cd, err := c.store.Get(bHash)
		if err != nil {
			tx.Abort()
			return 0, storageErr(err)
		}
		if cd == nil {
			// The new tip is not stored yet.
			cd = &database.ChainData{Block: b, TotalWork: totalWork}
		}

		cd.OnMainChain = true
		cd.MainChainSuccessor = nil
		if i+1 < len(forkBlocks) {
			next := forkBlocks[i+1].Hash()
			cd.MainChainSuccessor = &next
		}

		if err := batch.Put(bHash, *cd); err != nil {
			tx.Abort()
			return 0, storageErr(err)
		}
	}

	if err := batch.SetHead(hash); err != nil {
		tx.Abort()
		return 0, storageErr(err)
	}
	if err := batch.Commit(); err != nil {
		return 0, storageErr(err)
	}

	c.head = block
	c.headHash = hash
	c.headWork = totalWork

	c.evHandler("chain: rebranch: head[%s]: reverted[%d] applied[%d]", hash, len(revertChain), len(forkBlocks))

	return len(revertChain), nil
}
