package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/meridian-chain/meridian/foundation/blockchain/merkle"
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// HeaderLen is the exact serialized size of a block header.
const HeaderLen = 4*signature.HashLen + 4 + 4 + 4 + 4

// MaxBlockTxs bounds the transactions in one body. The body encodes the
// transaction count in a single byte.
const MaxBlockTxs = 255

// BlockHeader represents the fixed 144 byte commitment at the top of
// every block: four 32 byte hashes followed by four big endian u32s.
type BlockHeader struct {
	PrevHash      Hash
	InterlinkHash Hash
	BodyHash      Hash
	AccountsHash  Hash
	NBits         uint32
	Height        uint32
	TimeStamp     uint32
	Nonce         uint32
}

// Serialize returns the canonical fixed-size encoding of the header.
func (bh BlockHeader) Serialize() []byte {
	buf := make([]byte, 0, HeaderLen)
	buf = append(buf, bh.PrevHash[:]...)
	buf = append(buf, bh.InterlinkHash[:]...)
	buf = append(buf, bh.BodyHash[:]...)
	buf = append(buf, bh.AccountsHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, bh.NBits)
	buf = binary.BigEndian.AppendUint32(buf, bh.Height)
	buf = binary.BigEndian.AppendUint32(buf, bh.TimeStamp)
	buf = binary.BigEndian.AppendUint32(buf, bh.Nonce)
	return buf
}

// DeserializeBlockHeader decodes a header from its canonical encoding.
func DeserializeBlockHeader(data []byte) (BlockHeader, error) {
	if len(data) != HeaderLen {
		return BlockHeader{}, fmt.Errorf("invalid header length %d", len(data))
	}

	var bh BlockHeader
	copy(bh.PrevHash[:], data[0:32])
	copy(bh.InterlinkHash[:], data[32:64])
	copy(bh.BodyHash[:], data[64:96])
	copy(bh.AccountsHash[:], data[96:128])
	bh.NBits = binary.BigEndian.Uint32(data[128:132])
	bh.Height = binary.BigEndian.Uint32(data[132:136])
	bh.TimeStamp = binary.BigEndian.Uint32(data[136:140])
	bh.Nonce = binary.BigEndian.Uint32(data[140:144])

	return bh, nil
}

// Hash returns the proof of work digest of the header. This is the block's
// identity on the chain.
func (bh BlockHeader) Hash() Hash {
	return signature.HashData(bh.Serialize())
}

// =============================================================================

// Interlink is the ordered list of ancestor hashes at exponentially
// increasing difficulty levels used for succinct chain proofs.
type Interlink struct {
	Hashes []Hash
}

// Serialize returns the canonical encoding: count byte then hashes.
func (il Interlink) Serialize() []byte {
	buf := make([]byte, 0, 1+len(il.Hashes)*signature.HashLen)
	buf = append(buf, byte(len(il.Hashes)))
	for _, h := range il.Hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// DeserializeInterlink decodes an interlink from its canonical encoding
// and returns the number of bytes consumed.
func DeserializeInterlink(data []byte) (Interlink, int, error) {
	if len(data) < 1 {
		return Interlink{}, 0, errors.New("short interlink")
	}

	count := int(data[0])
	need := 1 + count*signature.HashLen
	if len(data) < need {
		return Interlink{}, 0, errors.New("short interlink")
	}

	il := Interlink{Hashes: make([]Hash, count)}
	for i := 0; i < count; i++ {
		copy(il.Hashes[i][:], data[1+i*signature.HashLen:])
	}

	return il, need, nil
}

// Hash returns the commitment to the interlink carried in the header.
func (il Interlink) Hash() Hash {
	return signature.HashData(il.Serialize())
}

// NextInterlink derives the interlink for a child of this block. Entry i of
// an interlink names the most recent ancestor whose proof of work meets the
// target halved i times. The parent replaces the leading entries for every
// level its own proof still satisfies.
func (b Block) NextInterlink(nextTarget *big.Int) Interlink {
	parentHash := b.Hash()
	pow := new(big.Int).SetBytes(parentHash[:])

	depth := 0
	t := new(big.Int).Set(nextTarget)
	for pow.Cmp(t) <= 0 {
		depth++
		t.Rsh(t, 1)
	}

	var hashes []Hash
	for i := 0; i < depth; i++ {
		hashes = append(hashes, parentHash)
	}
	if len(b.Interlink.Hashes) > depth {
		hashes = append(hashes, b.Interlink.Hashes[depth:]...)
	}

	return Interlink{Hashes: hashes}
}

// =============================================================================

// BlockBody carries the transactions of a block and the address collecting
// the block reward and fees.
type BlockBody struct {
	MinerAddress Address
	Transactions []Tx
}

// addressLeaf lets the miner address participate as the first leaf of the
// body's merkle tree.
type addressLeaf Address

func (a addressLeaf) Hash() Hash {
	return signature.HashData(a[:])
}

// Hash computes the merkle root over the miner address followed by the
// transactions in canonical order.
func (bb BlockBody) Hash() Hash {
	leaves := make([]merkle.Hashable, 0, 1+len(bb.Transactions))
	leaves = append(leaves, addressLeaf(bb.MinerAddress))
	for _, tx := range bb.Transactions {
		leaves = append(leaves, tx)
	}

	return merkle.Root(leaves)
}

// Serialize returns the canonical encoding: transaction count byte,
// transactions, then the miner address.
func (bb BlockBody) Serialize() []byte {
	buf := make([]byte, 0, 1+len(bb.Transactions)*TxLen+signature.AddressLen)
	buf = append(buf, byte(len(bb.Transactions)))
	for _, tx := range bb.Transactions {
		buf = append(buf, tx.Serialize()...)
	}
	buf = append(buf, bb.MinerAddress[:]...)
	return buf
}

// DeserializeBlockBody decodes a body from its canonical encoding and
// returns the number of bytes consumed.
func DeserializeBlockBody(data []byte) (BlockBody, int, error) {
	if len(data) < 1 {
		return BlockBody{}, 0, errors.New("short block body")
	}

	count := int(data[0])
	need := 1 + count*TxLen + signature.AddressLen
	if len(data) < need {
		return BlockBody{}, 0, errors.New("short block body")
	}

	var bb BlockBody
	for i := 0; i < count; i++ {
		tx, err := DeserializeTx(data[1+i*TxLen : 1+(i+1)*TxLen])
		if err != nil {
			return BlockBody{}, 0, err
		}
		bb.Transactions = append(bb.Transactions, tx)
	}
	copy(bb.MinerAddress[:], data[1+count*TxLen:need])

	return bb, need, nil
}

// Fees sums the fees of every transaction in the body.
func (bb BlockBody) Fees() uint64 {
	var fees uint64
	for _, tx := range bb.Transactions {
		fees += tx.Fee
	}
	return fees
}

// =============================================================================

// Block binds a header, its interlink, and optionally its body. A nil body
// supports header-only propagation.
type Block struct {
	Header    BlockHeader
	Interlink Interlink
	Body      *BlockBody
}

// Hash returns the block's identity: the digest of its header.
func (b Block) Hash() Hash {
	return b.Header.Hash()
}

// PowValue interprets the header digest as a big endian integer for
// comparison against the proof of work target.
func (b Block) PowValue() *big.Int {
	h := b.Hash()
	return new(big.Int).SetBytes(h[:])
}

// VerifyProofOfWork reports whether the header digest meets the target
// encoded in the header's nBits.
func (b Block) VerifyProofOfWork() bool {
	return b.PowValue().Cmp(CompactToTarget(b.Header.NBits)) <= 0
}

// Serialize returns the block's full wire encoding: header, interlink,
// then a presence byte and the body when one is attached.
func (b Block) Serialize() []byte {
	buf := b.Header.Serialize()
	buf = append(buf, b.Interlink.Serialize()...)
	if b.Body == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, b.Body.Serialize()...)
}

// DeserializeBlock decodes a block from its full wire encoding.
func DeserializeBlock(data []byte) (Block, error) {
	if len(data) < HeaderLen {
		return Block{}, errors.New("short block")
	}

	header, err := DeserializeBlockHeader(data[:HeaderLen])
	if err != nil {
		return Block{}, err
	}

	interlink, n, err := DeserializeInterlink(data[HeaderLen:])
	if err != nil {
		return Block{}, err
	}

	rest := data[HeaderLen+n:]
	if len(rest) < 1 {
		return Block{}, errors.New("short block")
	}

	block := Block{Header: header, Interlink: interlink}
	if rest[0] == 1 {
		body, _, err := DeserializeBlockBody(rest[1:])
		if err != nil {
			return Block{}, err
		}
		block.Body = &body
	}

	return block, nil
}
