package database

import (
	"math/big"
)

// Compact target encoding. The high byte of nBits is the length in bytes of
// the target, the low three bytes are the most significant bytes of the
// target value.

var (
	// maxTarget is the largest allowed proof of work target.
	maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

	// two256 is used to convert targets into expected work.
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// CompactToTarget expands the compact nBits encoding into the full 256 bit
// proof of work target.
func CompactToTarget(nBits uint32) *big.Int {
	size := nBits >> 24
	mantissa := new(big.Int).SetUint64(uint64(nBits & 0x007fffff))

	if size <= 3 {
		return mantissa.Rsh(mantissa, 8*(3-uint(size)))
	}
	return mantissa.Lsh(mantissa, 8*(uint(size)-3))
}

// TargetToCompact packs a 256 bit target into its compact nBits encoding.
// The encoding is normalized so the mantissa never has its sign bit set.
func TargetToCompact(target *big.Int) uint32 {
	size := uint32((target.BitLen() + 7) / 8)

	var mantissa uint32
	if size <= 3 {
		mantissa = uint32(target.Uint64() << (8 * (3 - size)))
	} else {
		shifted := new(big.Int).Rsh(target, 8*uint(size-3))
		mantissa = uint32(shifted.Uint64())
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	return size<<24 | mantissa
}

// ClampTarget bounds a target to the representable range.
func ClampTarget(target *big.Int) *big.Int {
	if target.Sign() <= 0 {
		return big.NewInt(1)
	}
	if target.Cmp(maxTarget) > 0 {
		return new(big.Int).Set(maxTarget)
	}
	return target
}

// BlockWork returns the expected number of hash attempts represented by a
// block mined against the specified compact target. Summed along a branch
// it is the fork choice metric.
func BlockWork(nBits uint32) *big.Int {
	target := CompactToTarget(nBits)
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(two256, denom)
}
