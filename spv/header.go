package spv

// BlockHeaderBytes is the size of a serialized Bitcoin block header.
const BlockHeaderBytes = 80

const (
	merkleRootOffset = 36
	merkleRootEnd    = 68
)

// BlockHeader is the decoded form of the 80-byte header. Hash fields keep
// internal (wire) byte order.
type BlockHeader struct {
	Version       uint32
	PrevBlockHash [32]byte
	MerkleRoot    [32]byte
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32
}

func ParseBlockHeader(b []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(b) != BlockHeaderBytes {
		return h, spverr(SPV_ERR_INVALID_HEADER_LENGTH, "block header must be 80 bytes")
	}
	off := 0

	version, err := readU32le(b, &off)
	if err != nil {
		return h, err
	}
	prev, err := readHash(b, &off)
	if err != nil {
		return h, err
	}
	merkle, err := readHash(b, &off)
	if err != nil {
		return h, err
	}
	ts, err := readU32le(b, &off)
	if err != nil {
		return h, err
	}
	bits, err := readU32le(b, &off)
	if err != nil {
		return h, err
	}
	nonce, err := readU32le(b, &off)
	if err != nil {
		return h, err
	}

	h.Version = version
	h.PrevBlockHash = prev
	h.MerkleRoot = merkle
	h.Timestamp = ts
	h.Bits = bits
	h.Nonce = nonce
	return h, nil
}

// ExtractMerkleRoot returns header bytes [36,68) without decoding anything else.
func ExtractMerkleRoot(header []byte) ([32]byte, error) {
	var root [32]byte
	if len(header) != BlockHeaderBytes {
		return root, spverr(SPV_ERR_INVALID_HEADER_LENGTH, "block header must be 80 bytes")
	}
	copy(root[:], header[merkleRootOffset:merkleRootEnd])
	return root, nil
}

// BlockHash returns the header hash in display order, the form block explorers
// and the header-hash store use.
func BlockHash(header []byte) ([32]byte, error) {
	if len(header) != BlockHeaderBytes {
		var zero [32]byte
		return zero, spverr(SPV_ERR_INVALID_HEADER_LENGTH, "block hash: invalid header length")
	}
	return Reverse32(Hash256(header)), nil
}
