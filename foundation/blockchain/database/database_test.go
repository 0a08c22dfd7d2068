package database_test

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
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

func TestHeaderWireFormat(t *testing.T) {
	t.Log("Given the need to validate the fixed-size header encoding.")
	{
		header := database.BlockHeader{
			PrevHash:      signature.HashData([]byte("prev")),
			InterlinkHash: signature.HashData([]byte("interlink")),
			BodyHash:      signature.HashData([]byte("body")),
			AccountsHash:  signature.HashData([]byte("accounts")),
			NBits:         0x1d00ffff,
			Height:        42,
			TimeStamp:     1_700_000_000,
			Nonce:         0xdeadbeef,
		}

		data := header.Serialize()
		if len(data) != database.HeaderLen {
			t.Fatalf("\t%s\tShould serialize to %d bytes, got %d.", failed, database.HeaderLen, len(data))
		}
		t.Logf("\t%s\tShould serialize to %d bytes.", success, database.HeaderLen)

		// Integers land big endian in the fixed tail of the header.
		if data[128] != 0x1d || data[131] != 0xff {
			t.Fatalf("\t%s\tShould encode nBits big endian.", failed)
		}
		if data[140] != 0xde || data[143] != 0xef {
			t.Fatalf("\t%s\tShould encode the nonce big endian.", failed)
		}
		t.Logf("\t%s\tShould encode integers big endian.", success)

		decoded, err := database.DeserializeBlockHeader(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the header: %v", failed, err)
		}
		if decoded != header {
			t.Fatalf("\t%s\tShould round trip the header.", failed)
		}
		t.Logf("\t%s\tShould round trip the header.", success)
	}
}

func TestTxSigning(t *testing.T) {
	t.Log("Given the need to validate transaction signing and identity.")
	{
		tx, err := database.NewTx(key(1), keyAddr(2), 100, 5, 7)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a transaction: %v", failed, err)
		}

		if !tx.VerifySignature() {
			t.Fatalf("\t%s\tShould verify a freshly signed transaction.", failed)
		}
		t.Logf("\t%s\tShould verify a freshly signed transaction.", success)

		if tx.Sender() != keyAddr(1) {
			t.Fatalf("\t%s\tShould derive the sender from the public key.", failed)
		}
		t.Logf("\t%s\tShould derive the sender from the public key.", success)

		data := tx.Serialize()
		if len(data) != database.TxLen {
			t.Fatalf("\t%s\tShould serialize to %d bytes, got %d.", failed, database.TxLen, len(data))
		}

		decoded, err := database.DeserializeTx(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the transaction: %v", failed, err)
		}
		if !decoded.Equals(tx) {
			t.Fatalf("\t%s\tShould round trip the transaction.", failed)
		}
		t.Logf("\t%s\tShould round trip the transaction.", success)

		decoded.Value++
		if decoded.VerifySignature() {
			t.Fatalf("\t%s\tShould fail verification after tampering.", failed)
		}
		t.Logf("\t%s\tShould fail verification after tampering.", success)
	}
}

func TestCompactTarget(t *testing.T) {
	t.Log("Given the need to validate the compact target encoding.")
	{
		// Bitcoin's genesis difficulty is the canonical fixture.
		target := database.CompactToTarget(0x1d00ffff)

		want, _ := new(big.Int).SetString("ffff0000000000000000000000000000000000000000000000000000", 16)
		if target.Cmp(want) != 0 {
			t.Logf("\t%s\tgot: %x", failed, target)
			t.Logf("\t%s\texp: %x", failed, want)
			t.Fatalf("\t%s\tShould expand the canonical compact target.", failed)
		}
		t.Logf("\t%s\tShould expand the canonical compact target.", success)

		if got := database.TargetToCompact(target); got != 0x1d00ffff {
			t.Fatalf("\t%s\tShould round trip the compact encoding, got %08x.", failed, got)
		}
		t.Logf("\t%s\tShould round trip the compact encoding.", success)

		// A mantissa with the sign bit set must renormalize.
		high := new(big.Int).SetBytes([]byte{0x80, 0x00, 0x00})
		nBits := database.TargetToCompact(high)
		if database.CompactToTarget(nBits).Cmp(high) != 0 {
			t.Fatalf("\t%s\tShould renormalize a high mantissa.", failed)
		}
		t.Logf("\t%s\tShould renormalize a high mantissa.", success)

		// More work for a smaller target.
		if database.BlockWork(0x1c00ffff).Cmp(database.BlockWork(0x1d00ffff)) <= 0 {
			t.Fatalf("\t%s\tShould report more work for a smaller target.", failed)
		}
		t.Logf("\t%s\tShould report more work for a smaller target.", success)
	}
}

func TestProofOfWork(t *testing.T) {
	t.Log("Given the need to validate proof of work verification.")
	{
		block := database.Block{
			Header: database.BlockHeader{NBits: 0x207fffff},
		}

		// With a target near 2^255 about half the nonces solve; with
		// target one effectively none do. Either way the check must agree with the
		// big integer comparison.
		for nonce := uint32(0); nonce < 64; nonce++ {
			block.Header.Nonce = nonce

			want := block.PowValue().Cmp(database.CompactToTarget(block.Header.NBits)) <= 0
			if got := block.VerifyProofOfWork(); got != want {
				t.Fatalf("\t%s\tShould agree with the integer comparison at nonce %d.", failed, nonce)
			}
		}
		t.Logf("\t%s\tShould agree with the integer comparison.", success)

		block.Header.NBits = 0x01010000
		if block.VerifyProofOfWork() {
			t.Fatalf("\t%s\tShould reject hashes above a tiny target.", failed)
		}
		t.Logf("\t%s\tShould reject hashes above a tiny target.", success)
	}
}

func TestBodyHash(t *testing.T) {
	t.Log("Given the need to validate the body commitment.")
	{
		tx1, _ := database.NewTx(key(1), keyAddr(2), 10, 1, 0)
		tx2, _ := database.NewTx(key(2), keyAddr(3), 20, 1, 0)

		body := database.BlockBody{
			MinerAddress: keyAddr(9),
			Transactions: []database.Tx{tx1, tx2},
		}

		if body.Hash() == (database.BlockBody{MinerAddress: keyAddr(9)}).Hash() {
			t.Fatalf("\t%s\tShould commit to the transactions.", failed)
		}
		t.Logf("\t%s\tShould commit to the transactions.", success)

		reordered := database.BlockBody{
			MinerAddress: keyAddr(9),
			Transactions: []database.Tx{tx2, tx1},
		}
		if body.Hash() == reordered.Hash() {
			t.Fatalf("\t%s\tShould commit to the transaction order.", failed)
		}
		t.Logf("\t%s\tShould commit to the transaction order.", success)

		otherMiner := database.BlockBody{
			MinerAddress: keyAddr(8),
			Transactions: []database.Tx{tx1, tx2},
		}
		if body.Hash() == otherMiner.Hash() {
			t.Fatalf("\t%s\tShould commit to the miner address.", failed)
		}
		t.Logf("\t%s\tShould commit to the miner address.", success)
	}
}

func TestBlockWire(t *testing.T) {
	t.Log("Given the need to round trip a full block on the wire.")
	{
		tx, _ := database.NewTx(key(1), keyAddr(2), 10, 1, 0)

		body := database.BlockBody{
			MinerAddress: keyAddr(9),
			Transactions: []database.Tx{tx},
		}
		interlink := database.Interlink{Hashes: []database.Hash{signature.HashData([]byte("a"))}}

		block := database.Block{
			Header: database.BlockHeader{
				InterlinkHash: interlink.Hash(),
				BodyHash:      body.Hash(),
				NBits:         0x207fffff,
				Height:        3,
				TimeStamp:     1_700_000_000,
			},
			Interlink: interlink,
			Body:      &body,
		}

		decoded, err := database.DeserializeBlock(block.Serialize())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the block: %v", failed, err)
		}
		if decoded.Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould round trip the header.", failed)
		}
		if decoded.Body == nil || decoded.Body.Hash() != body.Hash() {
			t.Fatalf("\t%s\tShould round trip the body.", failed)
		}
		t.Logf("\t%s\tShould round trip a block with a body.", success)

		headerOnly := block
		headerOnly.Body = nil
		decoded, err = database.DeserializeBlock(headerOnly.Serialize())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode a header-only block: %v", failed, err)
		}
		if decoded.Body != nil {
			t.Fatalf("\t%s\tShould round trip a header-only block.", failed)
		}
		t.Logf("\t%s\tShould round trip a header-only block.", success)
	}
}

func TestNextInterlink(t *testing.T) {
	t.Log("Given the need to derive a child interlink from its parent.")
	{
		parent := database.Block{
			Header: database.BlockHeader{NBits: 0x207fffff, Height: 5},
			Interlink: database.Interlink{Hashes: []database.Hash{
				signature.HashData([]byte("x")),
				signature.HashData([]byte("y")),
				signature.HashData([]byte("z")),
			}},
		}
		parentHash := parent.Hash()

		// A target the parent's proof misses entirely keeps the old
		// entries untouched.
		next := parent.NextInterlink(big.NewInt(1))
		if len(next.Hashes) != 3 || next.Hashes[0] != parent.Interlink.Hashes[0] {
			t.Fatalf("\t%s\tShould keep the parent interlink under a hard target.", failed)
		}
		t.Logf("\t%s\tShould keep the parent interlink under a hard target.", success)

		// A target the parent's proof satisfies once replaces the first
		// entry with the parent hash.
		target := new(big.Int).Add(parent.PowValue(), big.NewInt(1))
		next = parent.NextInterlink(target)
		if len(next.Hashes) < 1 || next.Hashes[0] != parentHash {
			t.Fatalf("\t%s\tShould lead with the parent hash when its proof qualifies.", failed)
		}
		for i := len(next.Hashes) - 1; i >= 0; i-- {
			if i >= 3 && next.Hashes[i] != parentHash {
				t.Fatalf("\t%s\tShould fill deep levels with the parent hash.", failed)
			}
		}
		t.Logf("\t%s\tShould lead with the parent hash when its proof qualifies.", success)

		// Derivation is deterministic.
		again := parent.NextInterlink(target)
		if again.Hash() != next.Hash() {
			t.Fatalf("\t%s\tShould derive deterministically.", failed)
		}
		t.Logf("\t%s\tShould derive deterministically.", success)
	}
}
