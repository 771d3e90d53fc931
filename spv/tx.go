package spv

// Tx is a transaction sliced out of a block. Only what inclusion proofs need is
// kept: the raw bytes and the txid.
type Tx struct {
	Raw     []byte
	TxID    [32]byte // internal byte order
	Segwit  bool
	Inputs  int
	Outputs int

	firstScriptSig []byte
}

// TxID parses one legacy or segwit transaction at the start of b and returns
// its txid in internal byte order together with the number of bytes consumed.
// The txid commits to the witness-stripped serialization.
func TxID(b []byte) ([32]byte, int, error) {
	tx, n, err := parseTx(b)
	if err != nil {
		return [32]byte{}, 0, err
	}
	return tx.TxID, n, nil
}

func parseTx(b []byte) (Tx, int, error) {
	var tx Tx
	off := 0
	if _, err := readU32le(b, &off); err != nil {
		return tx, 0, err
	}
	if off+2 <= len(b) && b[off] == 0x00 && b[off+1] == 0x01 {
		tx.Segwit = true
		off += 2
	}

	bodyStart := off
	nIn, err := readCompactSizeLen(b, &off, "input_count")
	if err != nil {
		return tx, 0, err
	}
	if nIn == 0 {
		return tx, 0, spverr(SPV_ERR_PARSE, "tx has no inputs")
	}
	for i := 0; i < nIn; i++ {
		if _, err := readBytes(b, &off, 32+4); err != nil { // prevout
			return tx, 0, err
		}
		scriptLen, err := readCompactSizeLen(b, &off, "script_sig_len")
		if err != nil {
			return tx, 0, err
		}
		script, err := readBytes(b, &off, scriptLen)
		if err != nil {
			return tx, 0, err
		}
		if i == 0 {
			tx.firstScriptSig = script
		}
		if _, err := readU32le(b, &off); err != nil { // sequence
			return tx, 0, err
		}
	}

	nOut, err := readCompactSizeLen(b, &off, "output_count")
	if err != nil {
		return tx, 0, err
	}
	for i := 0; i < nOut; i++ {
		if _, err := readU64le(b, &off); err != nil { // value
			return tx, 0, err
		}
		scriptLen, err := readCompactSizeLen(b, &off, "script_pubkey_len")
		if err != nil {
			return tx, 0, err
		}
		if _, err := readBytes(b, &off, scriptLen); err != nil {
			return tx, 0, err
		}
	}
	bodyEnd := off

	if tx.Segwit {
		for i := 0; i < nIn; i++ {
			items, err := readCompactSizeLen(b, &off, "witness_count")
			if err != nil {
				return tx, 0, err
			}
			for j := 0; j < items; j++ {
				itemLen, err := readCompactSizeLen(b, &off, "witness_item_len")
				if err != nil {
					return tx, 0, err
				}
				if _, err := readBytes(b, &off, itemLen); err != nil {
					return tx, 0, err
				}
			}
		}
	}

	lockStart := off
	if _, err := readU32le(b, &off); err != nil {
		return tx, 0, err
	}

	stripped := make([]byte, 0, 4+(bodyEnd-bodyStart)+4)
	stripped = append(stripped, b[0:4]...)
	stripped = append(stripped, b[bodyStart:bodyEnd]...)
	stripped = append(stripped, b[lockStart:off]...)

	tx.Raw = b[:off]
	tx.TxID = Hash256(stripped)
	tx.Inputs = nIn
	tx.Outputs = nOut
	return tx, off, nil
}
