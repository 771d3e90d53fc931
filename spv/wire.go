package spv

import "encoding/binary"

func readU8(b []byte, off *int) (uint8, error) {
	if *off+1 > len(b) {
		return 0, spverr(SPV_ERR_PARSE, "unexpected EOF (u8)")
	}
	v := b[*off]
	*off++
	return v, nil
}

func readU32le(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, spverr(SPV_ERR_PARSE, "unexpected EOF (u32le)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64le(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, spverr(SPV_ERR_PARSE, "unexpected EOF (u64le)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

func readBytes(b []byte, off *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, spverr(SPV_ERR_PARSE, "negative length")
	}
	if *off+n > len(b) {
		return nil, spverr(SPV_ERR_PARSE, "unexpected EOF (bytes)")
	}
	v := b[*off : *off+n]
	*off += n
	return v, nil
}

func readHash(b []byte, off *int) ([32]byte, error) {
	var h [32]byte
	v, err := readBytes(b, off, 32)
	if err != nil {
		return h, err
	}
	copy(h[:], v)
	return h, nil
}

// readCompactSizeLen reads a CompactSize and bounds it by what is left in b, so
// a hostile length cannot drive allocation.
func readCompactSizeLen(b []byte, off *int, name string) (int, error) {
	if *off > len(b) {
		return 0, spverr(SPV_ERR_PARSE, "unexpected EOF ("+name+")")
	}
	n, used, err := DecodeCompactSize(b[*off:])
	if err != nil {
		return 0, spverr(SPV_ERR_PARSE, name+": "+err.Error())
	}
	*off += used
	if uint64(n) > uint64(len(b)-*off) {
		return 0, spverr(SPV_ERR_PARSE, name+" exceeds remaining bytes")
	}
	return int(n), nil // #nosec G115 -- bounded by len(b) above.
}
