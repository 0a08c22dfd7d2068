package chain

import (
	"math/big"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

// nextTarget computes the compact proof of work target for the block that
// follows the specified parent. The retarget compares the wall time spent
// over the recent window against the scheduled time and scales the
// parent's target accordingly, bounded to a factor of two per block. The
// computation reads only chain data, so every node derives the same
// schedule.
func (c *Chain) nextTarget(parent database.Block) (uint32, error) {
	if parent.Header.Height == 0 {
		return c.genesis.InitialNBits, nil
	}

	window := c.genesis.RetargetWindow
	if parent.Header.Height < window {
		window = parent.Header.Height
	}

	first := parent
	for i := uint32(0); i < window; i++ {
		cd, err := c.store.Get(first.Header.PrevHash)
		if err != nil {
			return 0, err
		}
		if cd == nil {
			return 0, storageErr(errMissingAncestor)
		}
		first = cd.Block
	}

	elapsed := int64(parent.Header.TimeStamp) - int64(first.Header.TimeStamp)
	if elapsed < 1 {
		elapsed = 1
	}
	expected := int64(c.genesis.BlockTime) * int64(window)

	parentTarget := database.CompactToTarget(parent.Header.NBits)

	target := new(big.Int).Mul(parentTarget, big.NewInt(elapsed))
	target.Div(target, big.NewInt(expected))

	// Bound the adjustment so a single block can at most double or halve
	// the target.
	upper := new(big.Int).Lsh(parentTarget, 1)
	lower := new(big.Int).Rsh(parentTarget, 1)
	if target.Cmp(upper) > 0 {
		target = upper
	}
	if target.Cmp(lower) < 0 {
		target = lower
	}

	return database.TargetToCompact(database.ClampTarget(target)), nil
}
