package worker

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

// attemptBatch is how many nonces are tried between preemption checks.
// Small enough that head changes and shutdowns never wait long, large
// enough to keep channel operations off the hot path.
const attemptBatch = 256

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation assembles a candidate block and searches for a nonce
// until it finds one, is preempted, or is cancelled.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	if !w.working.Load() {
		return
	}

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
	default:
	}

	candidate, err := w.assembleCandidate()
	if err != nil {
		// The accounts tree may be transiently busy with a block commit.
		// Back off and ask for another run rather than going idle.
		w.evHandler("worker: runMiningOperation: MINING: WARNING: assemble: %s", err)
		time.Sleep(10 * time.Millisecond)
		w.SignalStartMining()
		return
	}

	for {
		// Preemption checks between attempt batches, most specific first:
		// new mempool content restarts assembly, a moved head drops the
		// candidate, a stop halts outright.
		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			return
		case <-w.shut:
			return
		default:
		}

		if !w.working.Load() {
			return
		}

		if w.mempoolChanged.Swap(false) {
			if candidate, err = w.assembleCandidate(); err != nil {
				w.evHandler("worker: runMiningOperation: MINING: WARNING: assemble: %s", err)
				time.Sleep(10 * time.Millisecond)
				w.SignalStartMining()
				return
			}
			continue
		}

		if w.chain.HeadHash() != candidate.Header.PrevHash {
			w.evHandler("worker: runMiningOperation: MINING: candidate is stale, dropping")
			return
		}

		for i := 0; i < attemptBatch; i++ {
			if candidate.VerifyProofOfWork() {
				w.publishMined(*candidate)
				return
			}
			candidate.Header.Nonce++
			w.attempts.Add(1)
		}
	}
}

// assembleCandidate builds the next block to mine from the current head,
// the difficulty schedule, and the best mempool transactions. The account
// state is only dry-run: the transaction supplying the accountsHash is
// aborted once the hash is read.
func (w *Worker) assembleCandidate() (*database.Block, error) {
	parent := w.chain.Head()

	nBits, err := w.chain.NextTarget()
	if err != nil {
		return nil, err
	}

	interlink := parent.NextInterlink(database.CompactToTarget(nBits))

	body := database.BlockBody{
		MinerAddress: w.minerAddress,
		Transactions: w.mempool.PickBest(database.MaxBlockTxs),
	}

	height := parent.Header.Height + 1

	session, err := w.chain.Accounts().Begin()
	if err != nil {
		return nil, err
	}
	if err := session.ApplyBody(body, height); err != nil {
		session.Abort()
		return nil, err
	}
	accountsHash := session.Hash()
	session.Abort()

	timestamp := uint32(time.Now().UTC().Unix())
	if timestamp < parent.Header.TimeStamp+1 {
		timestamp = parent.Header.TimeStamp + 1
	}

	// Start the nonce search at a random point so competing miners do not
	// walk the same path.
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}

	block := database.Block{
		Header: database.BlockHeader{
			PrevHash:      parent.Hash(),
			InterlinkHash: interlink.Hash(),
			BodyHash:      body.Hash(),
			AccountsHash:  accountsHash,
			NBits:         nBits,
			Height:        height,
			TimeStamp:     timestamp,
			Nonce:         binary.BigEndian.Uint32(seed[:]),
		},
		Interlink: interlink,
		Body:      &body,
	}

	w.evHandler("worker: assembleCandidate: height[%d] txs[%d] target[%08x]", height, len(body.Transactions), nBits)

	return &block, nil
}

// publishMined announces the solved block and hands it to the chain.
func (w *Worker) publishMined(block database.Block) {
	w.evHandler("worker: runMiningOperation: MINING: SOLVED: blk[%s]", block.Hash())

	w.blockMined.Publish(block)

	result, err := w.chain.PushBlock(block)
	if err != nil {
		w.evHandler("worker: runMiningOperation: MINING: ERROR: push mined block: %s", err)
		return
	}
	w.evHandler("worker: runMiningOperation: MINING: pushed mined block: %s", result)
}
