package spv

// Reverse16 returns b with its byte order reversed.
func Reverse16(b [16]byte) [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = b[15-i]
	}
	return out
}

// Reverse32 converts a hash between internal (wire) order and display order.
// The two halves are reversed independently and swapped.
func Reverse32(b [32]byte) [32]byte {
	var lo, hi [16]byte
	copy(lo[:], b[:16])
	copy(hi[:], b[16:])
	lo = Reverse16(lo)
	hi = Reverse16(hi)

	var out [32]byte
	copy(out[:16], hi[:])
	copy(out[16:], lo[:])
	return out
}

// ReverseHash is Reverse32 for callers holding an unsized slice.
func ReverseHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != 32 {
		return h, spverr(SPV_ERR_HASH_LENGTH, "expected 32 bytes")
	}
	copy(h[:], b)
	return Reverse32(h), nil
}
