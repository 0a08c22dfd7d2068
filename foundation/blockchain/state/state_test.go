package state_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/meridian-chain/meridian/foundation/blockchain/mempool"
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
	"github.com/meridian-chain/meridian/foundation/blockchain/state"
	"github.com/meridian-chain/meridian/foundation/kvstore/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func key(seed byte) ed25519.PrivateKey {
	var s [ed25519.SeedSize]byte
	s[0] = seed
	return ed25519.NewKeyFromSeed(s[:])
}

func keyAddr(seed byte) database.Address {
	return signature.PublicKeyToAddress(key(seed).Public().(ed25519.PublicKey))
}

func TestNodeLifecycle(t *testing.T) {
	t.Log("Given the need to run a node end to end.")
	{
		gen := genesis.Genesis{
			Date:           time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			ChainID:        1,
			BlockTime:      1,
			RetargetWindow: 10,
			InitialNBits:   0x207fffff,
			BaseReward:     500,
			MinFee:         1,
			Balances: map[string]uint64{
				keyAddr(1).String(): 10_000,
			},
		}

		st, err := state.New(state.Config{
			MinerAddress: keyAddr(9),
			KV:           memory.New(),
			Genesis:      gen,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the node state: %v", failed, err)
		}
		defer st.Shutdown()
		t.Logf("\t%s\tShould be able to create the node state.", success)

		account, err := st.Account(keyAddr(1))
		if err != nil || account.Balance != 10_000 {
			t.Fatalf("\t%s\tShould seed the genesis balances.", failed)
		}
		t.Logf("\t%s\tShould seed the genesis balances.", success)

		tx, err := database.NewTx(key(1), keyAddr(2), 250, 5, 0)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
		}
		result, err := st.SubmitTransaction(tx)
		if err != nil || result != mempool.Added {
			t.Fatalf("\t%s\tShould accept a valid transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a valid transaction.", success)

		st.StartMining()

		deadline := time.Now().Add(10 * time.Second)
		for st.Head().Header.Height == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould mine the pending transaction.", failed)
			}
			time.Sleep(10 * time.Millisecond)
		}
		st.StopMining()
		t.Logf("\t%s\tShould mine the pending transaction.", success)

		account, err = st.Account(keyAddr(2))
		if err != nil || account.Balance == 0 {
			t.Fatalf("\t%s\tShould credit the recipient after mining.", failed)
		}
		t.Logf("\t%s\tShould credit the recipient after mining.", success)
	}
}
