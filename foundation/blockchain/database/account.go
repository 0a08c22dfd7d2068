// Package database defines the data types that make up the blockchain and
// their canonical wire encodings. Every integer on the wire is big endian.
package database

import (
	"encoding/binary"
	"errors"

	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// Hash and Address are the identifier types shared by every subsystem.
type (
	Hash    = signature.Hash
	Address = signature.Address
)

// ToAddress converts a hex-encoded string into an address.
func ToAddress(s string) (Address, error) {
	return signature.ToAddress(s)
}

// ToHash converts a hex-encoded string into a hash.
func ToHash(s string) (Hash, error) {
	return signature.ToHash(s)
}

// AccountLen is the serialized size of an account: balance plus nonce.
const AccountLen = 12

// Account represents the balance and nonce stored for an address. A missing
// address is semantically the zero account.
type Account struct {
	Balance uint64
	Nonce   uint32
}

// IsZero reports whether the account carries no balance and no nonce.
// Zero accounts are pruned from the accounts tree.
func (a Account) IsZero() bool {
	return a.Balance == 0 && a.Nonce == 0
}

// Serialize returns the canonical encoding of the account.
func (a Account) Serialize() []byte {
	buf := make([]byte, AccountLen)
	binary.BigEndian.PutUint64(buf[0:8], a.Balance)
	binary.BigEndian.PutUint32(buf[8:12], a.Nonce)
	return buf
}

// DeserializeAccount decodes an account from its canonical encoding.
func DeserializeAccount(data []byte) (Account, error) {
	if len(data) != AccountLen {
		return Account{}, errors.New("invalid account length")
	}

	return Account{
		Balance: binary.BigEndian.Uint64(data[0:8]),
		Nonce:   binary.BigEndian.Uint32(data[8:12]),
	}, nil
}
