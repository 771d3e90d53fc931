package spv

import "fmt"

type Block struct {
	HeaderBytes []byte
	Header      BlockHeader
	Txs         []Tx
}

// ParseBlock decodes a serialized block and rejects trailing bytes.
func ParseBlock(b []byte) (*Block, error) {
	if len(b) < BlockHeaderBytes {
		return nil, spverr(SPV_ERR_PARSE, "block shorter than header")
	}
	header, err := ParseBlockHeader(b[:BlockHeaderBytes])
	if err != nil {
		return nil, err
	}
	off := BlockHeaderBytes
	count, err := readCompactSizeLen(b, &off, "tx_count")
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, spverr(SPV_ERR_PARSE, "block has no transactions")
	}

	txs := make([]Tx, 0, count)
	for i := 0; i < count; i++ {
		tx, n, err := parseTx(b[off:])
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		txs = append(txs, tx)
		off += n
	}
	if off != len(b) {
		return nil, spverr(SPV_ERR_PARSE, "trailing bytes after last tx")
	}
	return &Block{
		HeaderBytes: b[:BlockHeaderBytes],
		Header:      header,
		Txs:         txs,
	}, nil
}

// TxIDs returns the block's txids in internal byte order.
func (b *Block) TxIDs() [][32]byte {
	out := make([][32]byte, 0, len(b.Txs))
	for _, tx := range b.Txs {
		out = append(out, tx.TxID)
	}
	return out
}

// Hash is the block hash in display order.
func (b *Block) Hash() [32]byte {
	return Reverse32(Hash256(b.HeaderBytes))
}

// BIP34Height reads the height a version 2+ block commits to as the first push
// of its coinbase scriptSig. ok is false for blocks that predate BIP34.
func (b *Block) BIP34Height() (height uint64, ok bool, err error) {
	if int32(b.Header.Version) < 2 || len(b.Txs) == 0 { // #nosec G115 -- nVersion is signed on the wire.
		return 0, false, nil
	}
	script := b.Txs[0].firstScriptSig
	off := 0
	op, err := readU8(script, &off)
	if err != nil {
		return 0, false, spverr(SPV_ERR_BLOCK_HEIGHT, "coinbase scriptSig is empty")
	}
	switch {
	case op == 0x00: // OP_0
		return 0, true, nil
	case op >= 0x51 && op <= 0x60: // OP_1..OP_16
		return uint64(op - 0x50), true, nil
	case op >= 0x01 && op <= 0x08:
		push, err := readBytes(script, &off, int(op))
		if err != nil {
			return 0, false, spverr(SPV_ERR_BLOCK_HEIGHT, "coinbase height push truncated")
		}
		// Script numbers are little-endian with the sign in the top bit.
		if push[len(push)-1]&0x80 != 0 {
			return 0, false, spverr(SPV_ERR_BLOCK_HEIGHT, "coinbase height is negative")
		}
		for i := len(push) - 1; i >= 0; i-- {
			height = height<<8 | uint64(push[i])
		}
		return height, true, nil
	default:
		return 0, false, spverr(SPV_ERR_BLOCK_HEIGHT, fmt.Sprintf("coinbase scriptSig starts with opcode %#x, not a height push", op))
	}
}
