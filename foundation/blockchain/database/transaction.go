package database

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// Wire sizes for a transaction and its parts.
const (
	PubKeyLen    = ed25519.PublicKeySize
	SignatureLen = ed25519.SignatureSize
	TxContentLen = PubKeyLen + signature.AddressLen + 8 + 8 + 4
	TxLen        = TxContentLen + SignatureLen
)

// Tx is the transactional information between two parties.
type Tx struct {
	SenderPubKey [PubKeyLen]byte
	Recipient    Address
	Value        uint64
	Fee          uint64
	Nonce        uint32
	Signature    [SignatureLen]byte
}

// NewTx constructs a transaction and signs it with the specified
// private key.
func NewTx(privateKey ed25519.PrivateKey, recipient Address, value uint64, fee uint64, nonce uint32) (Tx, error) {
	pub, ok := privateKey.Public().(ed25519.PublicKey)
	if !ok {
		return Tx{}, errors.New("invalid private key")
	}

	tx := Tx{
		Recipient: recipient,
		Value:     value,
		Fee:       fee,
		Nonce:     nonce,
	}
	copy(tx.SenderPubKey[:], pub)

	sig := signature.Sign(tx.sigContent(), privateKey)
	copy(tx.Signature[:], sig)

	return tx, nil
}

// Sender returns the address that funds this transaction.
func (tx Tx) Sender() Address {
	return signature.PublicKeyToAddress(tx.SenderPubKey[:])
}

// VerifySignature checks the signature covers the canonical serialization
// of the transaction content.
func (tx Tx) VerifySignature() bool {
	return signature.Verify(tx.SenderPubKey[:], tx.sigContent(), tx.Signature[:])
}

// Serialize returns the canonical wire encoding:
// pubkey || recipient || value || fee || nonce || signature.
func (tx Tx) Serialize() []byte {
	buf := make([]byte, 0, TxLen)
	buf = append(buf, tx.sigContent()...)
	buf = append(buf, tx.Signature[:]...)
	return buf
}

// DeserializeTx decodes a transaction from its canonical wire encoding.
func DeserializeTx(data []byte) (Tx, error) {
	if len(data) != TxLen {
		return Tx{}, fmt.Errorf("invalid transaction length %d", len(data))
	}

	var tx Tx
	copy(tx.SenderPubKey[:], data[0:PubKeyLen])
	copy(tx.Recipient[:], data[PubKeyLen:PubKeyLen+signature.AddressLen])

	offset := PubKeyLen + signature.AddressLen
	tx.Value = binary.BigEndian.Uint64(data[offset : offset+8])
	tx.Fee = binary.BigEndian.Uint64(data[offset+8 : offset+16])
	tx.Nonce = binary.BigEndian.Uint32(data[offset+16 : offset+20])
	copy(tx.Signature[:], data[offset+20:])

	return tx, nil
}

// Hash returns the digest of the serialized transaction for use as a
// merkle leaf and as the mempool identity.
func (tx Tx) Hash() Hash {
	return signature.HashData(tx.Serialize())
}

// FeePerByte returns the fee density used to order transactions for
// block inclusion.
func (tx Tx) FeePerByte() float64 {
	return float64(tx.Fee) / float64(TxLen)
}

// Equals reports whether two transactions are the same on the wire.
func (tx Tx) Equals(other Tx) bool {
	return bytes.Equal(tx.Serialize(), other.Serialize())
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:%d", tx.Sender(), tx.Nonce)
}

// sigContent returns the bytes covered by the signature.
func (tx Tx) sigContent() []byte {
	buf := make([]byte, 0, TxContentLen)
	buf = append(buf, tx.SenderPubKey[:]...)
	buf = append(buf, tx.Recipient[:]...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Value)
	buf = binary.BigEndian.AppendUint64(buf, tx.Fee)
	buf = binary.BigEndian.AppendUint32(buf, tx.Nonce)
	return buf
}
