// Package signature provides helper functions for handling the hashing and
// signing needs of the blockchain.
package signature

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// HashLen is the number of bytes in every hash produced by this package.
const HashLen = 32

// AddressLen is the number of bytes in an account address.
const AddressLen = 20

// =============================================================================

// Hash represents the 32 byte digest used to identify blocks, transactions,
// and accounts-tree nodes.
type Hash [HashLen]byte

// ZeroHash represents a hash code of zeros.
var ZeroHash Hash

// HashData returns the digest of the specified data.
func HashData(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// ToHash converts a hex-encoded string into a hash value.
func ToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroHash, err
	}
	if len(b) != HashLen {
		return ZeroHash, errors.New("invalid hash length")
	}

	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether the hash holds only zero bytes.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String implements the fmt.Stringer interface for logging.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// =============================================================================

// Address represents the 20 byte account identifier derived from a
// public key.
type Address [AddressLen]byte

// PublicKeyToAddress converts a public key to the account address it
// controls. The address is the leading bytes of the key's digest.
func PublicKeyToAddress(pub ed25519.PublicKey) Address {
	h := blake2b.Sum256(pub)

	var addr Address
	copy(addr[:], h[:AddressLen])
	return addr
}

// ToAddress converts a hex-encoded string into an address and validates the
// hex-encoded string is formatted correctly.
func ToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) != AddressLen {
		return Address{}, errors.New("invalid address length")
	}

	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// String implements the fmt.Stringer interface for logging.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// =============================================================================

// Sign uses the specified private key to sign the data.
func Sign(data []byte, privateKey ed25519.PrivateKey) []byte {
	return ed25519.Sign(privateKey, data)
}

// Verify checks the signature was produced over the data by the holder of
// the specified public key.
func Verify(pub ed25519.PublicKey, data []byte, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, data, sig)
}
