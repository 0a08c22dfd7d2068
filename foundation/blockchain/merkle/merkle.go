// Package merkle provides a binary hash tree for computing the commitment
// to the contents of a block body.
package merkle

import (
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// Hashable represents the behavior concrete data must exhibit to be used
// as a leaf in the tree.
type Hashable interface {
	Hash() signature.Hash
}

// Root computes the merkle root over the specified values. Each level is
// built by hashing the concatenation of adjacent pairs. A level with an odd
// number of nodes duplicates its last node.
func Root[T Hashable](values []T) signature.Hash {
	if len(values) == 0 {
		return signature.ZeroHash
	}

	level := make([]signature.Hash, len(values))
	for i, v := range values {
		level[i] = v.Hash()
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]signature.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			data := make([]byte, 0, 2*signature.HashLen)
			data = append(data, level[i][:]...)
			data = append(data, level[i+1][:]...)
			next[i/2] = signature.HashData(data)
		}
		level = next
	}

	return level[0]
}

// Proof is the ordered list of sibling hashes needed to recompute the root
// from a single leaf.
type Proof struct {
	Index    int
	Siblings []signature.Hash
}

// Prove builds the inclusion proof for the leaf at the specified index.
func Prove[T Hashable](values []T, index int) Proof {
	proof := Proof{Index: index}
	if index < 0 || index >= len(values) {
		return proof
	}

	level := make([]signature.Hash, len(values))
	for i, v := range values {
		level[i] = v.Hash()
	}

	pos := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		sibling := pos ^ 1
		proof.Siblings = append(proof.Siblings, level[sibling])

		next := make([]signature.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			data := make([]byte, 0, 2*signature.HashLen)
			data = append(data, level[i][:]...)
			data = append(data, level[i+1][:]...)
			next[i/2] = signature.HashData(data)
		}
		level = next
		pos /= 2
	}

	return proof
}

// Verify recomputes the root from a leaf hash and its proof and compares
// it against the expected root.
func Verify(leaf signature.Hash, proof Proof, root signature.Hash) bool {
	hash := leaf
	pos := proof.Index

	for _, sibling := range proof.Siblings {
		data := make([]byte, 0, 2*signature.HashLen)
		if pos%2 == 0 {
			data = append(data, hash[:]...)
			data = append(data, sibling[:]...)
		} else {
			data = append(data, sibling[:]...)
			data = append(data, hash[:]...)
		}
		hash = signature.HashData(data)
		pos /= 2
	}

	return hash == root
}
