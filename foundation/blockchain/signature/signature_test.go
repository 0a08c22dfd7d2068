package signature_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestSignVerify(t *testing.T) {
	t.Log("Given the need to sign data and verify the signature.")
	{
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key pair: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to generate a key pair.", success)

		data := []byte("the quick brown fox")
		sig := signature.Sign(data, priv)

		if !signature.Verify(pub, data, sig) {
			t.Fatalf("\t%s\tShould verify a valid signature.", failed)
		}
		t.Logf("\t%s\tShould verify a valid signature.", success)

		if signature.Verify(pub, []byte("tampered"), sig) {
			t.Fatalf("\t%s\tShould reject a signature over different data.", failed)
		}
		t.Logf("\t%s\tShould reject a signature over different data.", success)

		otherPub, _, _ := ed25519.GenerateKey(nil)
		if signature.Verify(otherPub, data, sig) {
			t.Fatalf("\t%s\tShould reject a signature from a different key.", failed)
		}
		t.Logf("\t%s\tShould reject a signature from a different key.", success)

		if signature.Verify(pub[:16], data, sig) {
			t.Fatalf("\t%s\tShould reject a malformed public key.", failed)
		}
		t.Logf("\t%s\tShould reject a malformed public key.", success)
	}
}

func TestAddress(t *testing.T) {
	t.Log("Given the need to derive addresses from public keys.")
	{
		pub, _, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key pair: %v", failed, err)
		}

		addr := signature.PublicKeyToAddress(pub)

		// Derivation is deterministic and round trips through hex.
		if signature.PublicKeyToAddress(pub) != addr {
			t.Fatalf("\t%s\tShould derive the same address twice.", failed)
		}
		t.Logf("\t%s\tShould derive the same address twice.", success)

		parsed, err := signature.ToAddress(addr.String())
		if err != nil || parsed != addr {
			t.Fatalf("\t%s\tShould round trip through the hex encoding.", failed)
		}
		t.Logf("\t%s\tShould round trip through the hex encoding.", success)

		if _, err := signature.ToAddress("zz"); err == nil {
			t.Fatalf("\t%s\tShould reject malformed hex.", failed)
		}
		if _, err := signature.ToAddress("abcd"); err == nil {
			t.Fatalf("\t%s\tShould reject a short address.", failed)
		}
		t.Logf("\t%s\tShould reject malformed input.", success)
	}
}

func TestHashData(t *testing.T) {
	t.Log("Given the need for a stable 32 byte digest.")
	{
		h1 := signature.HashData([]byte("abc"))
		h2 := signature.HashData([]byte("abc"))
		if h1 != h2 {
			t.Fatalf("\t%s\tShould hash deterministically.", failed)
		}
		t.Logf("\t%s\tShould hash deterministically.", success)

		if h1 == signature.HashData([]byte("abd")) {
			t.Fatalf("\t%s\tShould produce different digests for different data.", failed)
		}
		t.Logf("\t%s\tShould produce different digests for different data.", success)

		parsed, err := signature.ToHash(h1.String())
		if err != nil || parsed != h1 {
			t.Fatalf("\t%s\tShould round trip through the hex encoding.", failed)
		}
		t.Logf("\t%s\tShould round trip through the hex encoding.", success)
	}
}
