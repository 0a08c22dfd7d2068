package chain_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/chain"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
	"github.com/meridian-chain/meridian/foundation/kvstore/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func key(seed byte) ed25519.PrivateKey {
	var s [ed25519.SeedSize]byte
	s[0] = seed
	return ed25519.NewKeyFromSeed(s[:])
}

func keyAddr(seed byte) database.Address {
	return signature.PublicKeyToAddress(key(seed).Public().(ed25519.PublicKey))
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:           time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		BlockTime:      1,
		RetargetWindow: 10,
		InitialNBits:   0x200fffff,
		BaseReward:     500,
		MinFee:         1,
		Balances: map[string]uint64{
			keyAddr(1).String(): 10_000,
			keyAddr(2).String(): 10_000,
		},
	}
}

func newChain(t *testing.T) *chain.Chain {
	t.Helper()

	c, err := chain.New(chain.Config{
		KV:      memory.New(),
		Genesis: testGenesis(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a chain: %v", failed, err)
	}
	return c
}

// nextBlock assembles and solves a block extending the specified chain's
// current head.
func nextBlock(t *testing.T, c *chain.Chain, body database.BlockBody) database.Block {
	t.Helper()

	parent := c.Head()

	nBits, err := c.NextTarget()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to compute the next target: %v", failed, err)
	}

	interlink := parent.NextInterlink(database.CompactToTarget(nBits))
	height := parent.Header.Height + 1

	session, err := c.Accounts().Begin()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to begin a session: %v", failed, err)
	}
	if err := session.ApplyBody(body, height); err != nil {
		session.Abort()
		t.Fatalf("\t%s\tShould be able to dry run the body: %v", failed, err)
	}
	accountsHash := session.Hash()
	session.Abort()

	block := database.Block{
		Header: database.BlockHeader{
			PrevHash:      parent.Hash(),
			InterlinkHash: interlink.Hash(),
			BodyHash:      body.Hash(),
			AccountsHash:  accountsHash,
			NBits:         nBits,
			Height:        height,
			TimeStamp:     parent.Header.TimeStamp + 1,
		},
		Interlink: interlink,
		Body:      &body,
	}

	solve(&block)
	return block
}

func solve(block *database.Block) {
	for !block.VerifyProofOfWork() {
		block.Header.Nonce++
	}
}

func signTx(t *testing.T, seed byte, to database.Address, value, fee uint64, nonce uint32) database.Tx {
	t.Helper()

	tx, err := database.NewTx(key(seed), to, value, fee, nonce)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
	}
	return tx
}

// =============================================================================

func TestLinearExtension(t *testing.T) {
	t.Log("Given the need to validate pushing blocks that extend the head.")
	{
		c := newChain(t)
		miner := keyAddr(9)

		var blocks []database.Block
		for i := 0; i < 3; i++ {
			body := database.BlockBody{
				MinerAddress: miner,
				Transactions: []database.Tx{signTx(t, 1, keyAddr(3), 100, 2, uint32(i))},
			}
			block := nextBlock(t, c, body)

			result, err := c.PushBlock(block)
			if err != nil {
				t.Fatalf("\t%s\tBlock %d:\tShould be able to push the block: %v", failed, i+1, err)
			}
			if result != chain.Extended {
				t.Fatalf("\t%s\tBlock %d:\tShould report EXTENDED, got %s.", failed, i+1, result)
			}
			t.Logf("\t%s\tBlock %d:\tShould report EXTENDED.", success, i+1)

			if c.HeadHash() != block.Hash() {
				t.Fatalf("\t%s\tBlock %d:\tShould move the head to the new block.", failed, i+1)
			}
			t.Logf("\t%s\tBlock %d:\tShould move the head to the new block.", success, i+1)

			blocks = append(blocks, block)
		}

		result, err := c.PushBlock(blocks[1])
		if err != nil || result != chain.Known {
			t.Fatalf("\t%s\tShould report KNOWN for a repeated block, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould report KNOWN for a repeated block.", success)

		// Fees and rewards landed with the miner.
		account, err := c.Accounts().Get(miner)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the miner account: %v", failed, err)
		}
		gen := c.Genesis()
		want := 3 * (gen.BlockReward(1) + 2)
		if account.Balance != want {
			t.Fatalf("\t%s\tShould credit the miner %d, got %d.", failed, want, account.Balance)
		}
		t.Logf("\t%s\tShould credit the miner the rewards and fees.", success)
	}
}

func TestOrphans(t *testing.T) {
	t.Log("Given the need to buffer blocks that arrive before their parent.")
	{
		c := newChain(t)

		scratch := newChain(t)
		b1 := nextBlock(t, scratch, database.BlockBody{MinerAddress: keyAddr(9)})
		if _, err := scratch.PushBlock(b1); err != nil {
			t.Fatalf("\t%s\tShould be able to push on the scratch chain: %v", failed, err)
		}
		b2 := nextBlock(t, scratch, database.BlockBody{MinerAddress: keyAddr(9)})

		result, err := c.PushBlock(b2)
		if err != nil || result != chain.Orphan {
			t.Fatalf("\t%s\tShould report ORPHAN for a block without a parent, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould report ORPHAN for a block without a parent.", success)

		result, err = c.PushBlock(b1)
		if err != nil || result != chain.Extended {
			t.Fatalf("\t%s\tShould report EXTENDED for the missing parent, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould report EXTENDED for the missing parent.", success)

		if c.HeadHash() != b2.Hash() {
			t.Fatalf("\t%s\tShould adopt the orphan once the parent lands.", failed)
		}
		t.Logf("\t%s\tShould adopt the orphan once the parent lands.", success)
	}
}

func TestReorg(t *testing.T) {
	t.Log("Given the need to rebranch onto a heavier competing chain.")
	{
		c := newChain(t)

		// Main chain: two blocks mined to one miner.
		b1 := nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		c.PushBlock(b1)
		b2 := nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		c.PushBlock(b2)

		// Competing chain: three blocks to a different miner, built on a
		// scratch chain sharing the same genesis.
		scratch := newChain(t)
		var fork []database.Block
		for i := 0; i < 3; i++ {
			block := nextBlock(t, scratch, database.BlockBody{MinerAddress: keyAddr(8)})
			if _, err := scratch.PushBlock(block); err != nil {
				t.Fatalf("\t%s\tShould be able to build the fork: %v", failed, err)
			}
			fork = append(fork, block)
		}

		result, err := c.PushBlock(fork[0])
		if err != nil || result != chain.Accepted {
			t.Fatalf("\t%s\tShould report ACCEPTED for the lighter fork block, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould report ACCEPTED for the lighter fork block.", success)

		result, err = c.PushBlock(fork[1])
		if err != nil || result != chain.Accepted {
			t.Fatalf("\t%s\tShould report ACCEPTED while the fork is not heavier, got %s.", failed, result)
		}

		result, err = c.PushBlock(fork[2])
		if err != nil || result != chain.Forked {
			t.Fatalf("\t%s\tShould report FORKED when the fork takes over, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould report FORKED when the fork takes over.", success)

		if c.HeadHash() != fork[2].Hash() {
			t.Fatalf("\t%s\tShould move the head to the fork tip.", failed)
		}
		t.Logf("\t%s\tShould move the head to the fork tip.", success)

		onMain, err := c.OnMainChain(b2.Hash())
		if err != nil || onMain {
			t.Fatalf("\t%s\tShould take the old branch off the main chain.", failed)
		}
		onMain, err = c.OnMainChain(fork[2].Hash())
		if err != nil || !onMain {
			t.Fatalf("\t%s\tShould put the fork blocks on the main chain.", failed)
		}
		t.Logf("\t%s\tShould flip the main chain markers.", success)

		// The account state must equal replaying the fork from genesis,
		// which is exactly what the scratch chain holds.
		if c.Accounts().Hash() != scratch.Accounts().Hash() {
			t.Fatalf("\t%s\tShould land on the fork's account state.", failed)
		}
		t.Logf("\t%s\tShould land on the fork's account state.", success)

		// The old miner's rewards are gone, the fork miner's are present.
		account, _ := c.Accounts().Get(keyAddr(9))
		if account.Balance != 0 {
			t.Fatalf("\t%s\tShould revert the old branch rewards.", failed)
		}
		account, _ = c.Accounts().Get(keyAddr(8))
		if account.Balance == 0 {
			t.Fatalf("\t%s\tShould apply the fork branch rewards.", failed)
		}
		t.Logf("\t%s\tShould move the rewards to the fork miner.", success)
	}
}

func TestRebranchAtomicity(t *testing.T) {
	t.Log("Given the need to leave the state intact when a rebranch fails.")
	{
		c := newChain(t)

		b1 := nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		c.PushBlock(b1)

		headBefore := c.HeadHash()
		stateBefore := c.Accounts().Hash()

		// A competing branch whose tip lies about the account state.
		scratch := newChain(t)
		f1 := nextBlock(t, scratch, database.BlockBody{MinerAddress: keyAddr(8)})
		scratch.PushBlock(f1)
		f2 := nextBlock(t, scratch, database.BlockBody{MinerAddress: keyAddr(8)})
		f2.Header.AccountsHash = database.Hash{0xde, 0xad}
		solve(&f2)

		if result, _ := c.PushBlock(f1); result != chain.Accepted {
			t.Fatalf("\t%s\tShould accept the fork base.", failed)
		}

		result, err := c.PushBlock(f2)
		if result != chain.Invalid || err == nil {
			t.Fatalf("\t%s\tShould report INVALID for the lying fork tip, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould report INVALID for the lying fork tip.", success)

		if c.HeadHash() != headBefore {
			t.Fatalf("\t%s\tShould keep the head on the original chain.", failed)
		}
		t.Logf("\t%s\tShould keep the head on the original chain.", success)

		if c.Accounts().Hash() != stateBefore {
			t.Fatalf("\t%s\tShould keep the account state bit-identical.", failed)
		}
		t.Logf("\t%s\tShould keep the account state bit-identical.", success)
	}
}

func TestInvalidBlocks(t *testing.T) {
	t.Log("Given the need to reject blocks that fail validation.")
	{
		c := newChain(t)

		// Wrong difficulty.
		block := nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		block.Header.NBits = 0x207fffff
		solve(&block)
		if result, _ := c.PushBlock(block); result != chain.Invalid {
			t.Fatalf("\t%s\tShould reject a block with the wrong nBits, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould reject a block with the wrong nBits.", success)

		// Timestamp not after parent.
		block = nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		block.Header.TimeStamp = c.Head().Header.TimeStamp
		solve(&block)
		if result, _ := c.PushBlock(block); result != chain.Invalid {
			t.Fatalf("\t%s\tShould reject a block with a stale timestamp, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould reject a block with a stale timestamp.", success)

		// Timestamp too far in the future.
		block = nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		block.Header.TimeStamp = uint32(time.Now().UTC().Add(time.Hour).Unix())
		solve(&block)
		if result, _ := c.PushBlock(block); result != chain.Invalid {
			t.Fatalf("\t%s\tShould reject a block from the future, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould reject a block from the future.", success)

		// Tampered body.
		block = nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		block.Body.MinerAddress = keyAddr(8)
		solve(&block)
		if result, _ := c.PushBlock(block); result != chain.Invalid {
			t.Fatalf("\t%s\tShould reject a block whose body does not match its commitment, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould reject a block whose body does not match its commitment.", success)

		// Unsolved proof of work.
		block = nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		for block.VerifyProofOfWork() {
			block.Header.Nonce++
		}
		if result, _ := c.PushBlock(block); result != chain.Invalid {
			t.Fatalf("\t%s\tShould reject a block without proof of work, got %s.", failed, result)
		}
		t.Logf("\t%s\tShould reject a block without proof of work.", success)
	}
}

func TestEventOrdering(t *testing.T) {
	t.Log("Given the need to deliver block-added before head-changed.")
	{
		c := newChain(t)

		var order []string
		c.SubscribeBlockAdded(func(database.Block) {
			order = append(order, "block-added")
		})
		c.SubscribeHeadChanged(func(chain.HeadChange) {
			order = append(order, "head-changed")
		})

		block := nextBlock(t, c, database.BlockBody{MinerAddress: keyAddr(9)})
		if _, err := c.PushBlock(block); err != nil {
			t.Fatalf("\t%s\tShould be able to push the block: %v", failed, err)
		}

		if len(order) != 2 || order[0] != "block-added" || order[1] != "head-changed" {
			t.Fatalf("\t%s\tShould deliver block-added then head-changed, got %v.", failed, order)
		}
		t.Logf("\t%s\tShould deliver block-added then head-changed.", success)
	}
}
