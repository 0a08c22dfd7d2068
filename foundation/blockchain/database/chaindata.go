package database

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// ChainData carries the per-block bookkeeping the chain maintains next to
// the block itself: the cumulative work of the branch ending here, whether
// the block sits on the main chain, and which block follows it there.
type ChainData struct {
	Block              Block
	TotalWork          *big.Int
	OnMainChain        bool
	MainChainSuccessor *Hash
}

// Serialize returns the binary encoding of the chain data record.
func (cd ChainData) Serialize() []byte {
	blockData := cd.Block.Serialize()
	workData := cd.TotalWork.Bytes()

	buf := make([]byte, 0, 4+len(blockData)+1+len(workData)+2+len(cd.MainChainSuccessor)*32)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(blockData)))
	buf = append(buf, blockData...)
	buf = append(buf, byte(len(workData)))
	buf = append(buf, workData...)

	if cd.OnMainChain {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	if cd.MainChainSuccessor != nil {
		buf = append(buf, 1)
		buf = append(buf, cd.MainChainSuccessor[:]...)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DeserializeChainData decodes a chain data record.
func DeserializeChainData(data []byte) (ChainData, error) {
	if len(data) < 4 {
		return ChainData{}, errors.New("short chain data")
	}

	blockLen := int(binary.BigEndian.Uint32(data[0:4]))
	if len(data) < 4+blockLen+1 {
		return ChainData{}, errors.New("short chain data")
	}

	block, err := DeserializeBlock(data[4 : 4+blockLen])
	if err != nil {
		return ChainData{}, err
	}

	offset := 4 + blockLen
	workLen := int(data[offset])
	offset++
	if len(data) < offset+workLen+2 {
		return ChainData{}, errors.New("short chain data")
	}

	cd := ChainData{
		Block:     block,
		TotalWork: new(big.Int).SetBytes(data[offset : offset+workLen]),
	}
	offset += workLen

	cd.OnMainChain = data[offset] == 1
	offset++

	if data[offset] == 1 {
		if len(data) < offset+1+32 {
			return ChainData{}, errors.New("short chain data")
		}
		var succ Hash
		copy(succ[:], data[offset+1:offset+33])
		cd.MainChainSuccessor = &succ
	}

	return cd, nil
}
