package spv

import "fmt"

// CompactSize is Bitcoin's variable-length integer ("varint" in the P2P docs).
type CompactSize uint64

// DecodeCompactSize reads a CompactSize from the start of b and returns it with
// the number of bytes used. Non-minimal encodings are rejected.
func DecodeCompactSize(b []byte) (CompactSize, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("compactsize: empty")
	}
	var width int
	var floor uint64
	switch b[0] {
	case 0xfd:
		width, floor = 2, 0xfd
	case 0xfe:
		width, floor = 4, 0x1_0000
	case 0xff:
		width, floor = 8, 0x1_0000_0000
	default:
		return CompactSize(b[0]), 1, nil
	}
	if len(b) < 1+width {
		return 0, 0, fmt.Errorf("compactsize: truncated %d-byte value", width)
	}
	var n uint64
	for i := width; i >= 1; i-- {
		n = n<<8 | uint64(b[i])
	}
	if n < floor {
		return 0, 0, fmt.Errorf("compactsize: non-minimal %d-byte value %d", width, n)
	}
	return CompactSize(n), 1 + width, nil
}
