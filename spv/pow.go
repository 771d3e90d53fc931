package spv

import (
	"fmt"

	"github.com/holiman/uint256"
)

// CompactToTarget expands the header "bits" field into the 256-bit target.
func CompactToTarget(bits uint32) (*uint256.Int, error) {
	exponent := uint(bits >> 24)
	mantissa := uint64(bits & 0x007fffff)
	if bits&0x00800000 != 0 && mantissa != 0 {
		return nil, spverr(SPV_ERR_POW_INVALID, fmt.Sprintf("negative target bits %08x", bits))
	}

	target := uint256.NewInt(mantissa)
	if exponent <= 3 {
		return target.Rsh(target, 8*(3-exponent)), nil
	}
	shift := 8 * (exponent - 3)
	if mantissa != 0 && (shift >= 256 || target.BitLen()+int(shift) > 256) {
		return nil, spverr(SPV_ERR_POW_INVALID, fmt.Sprintf("target bits %08x overflow", bits))
	}
	return target.Lsh(target, shift), nil
}

// CheckProofOfWork verifies the header hash is at or below the target it claims.
// It says nothing about whether that target is the one the chain required.
func CheckProofOfWork(header []byte) error {
	h, err := ParseBlockHeader(header)
	if err != nil {
		return err
	}
	target, err := CompactToTarget(h.Bits)
	if err != nil {
		return err
	}
	if target.IsZero() {
		return spverr(SPV_ERR_POW_INVALID, "zero target")
	}
	display := Reverse32(Hash256(header))
	hashInt := new(uint256.Int).SetBytes32(display[:])
	if hashInt.Cmp(target) > 0 {
		return spverr(SPV_ERR_POW_INVALID, "hash above target")
	}
	return nil
}
