package spv

import (
	"errors"
	"fmt"
)

// Verifier binds headers to heights through a trusted HeaderHashSource and
// checks transaction inclusion against them. It holds no mutable state and is
// safe for concurrent use.
type Verifier struct {
	source HeaderHashSource
}

func NewVerifier(source HeaderHashSource) (*Verifier, error) {
	if source == nil {
		return nil, errors.New("spv: nil header hash source")
	}
	return &Verifier{source: source}, nil
}

// VerifyBlockHeader reports whether header hashes to the value recorded for
// height. An unrecorded height is (false, nil). Errors are reserved for a
// header of the wrong size or a failing source.
func (v *Verifier) VerifyBlockHeader(header []byte, height uint64) (bool, error) {
	got, err := BlockHash(header)
	if err != nil {
		return false, err
	}
	want, ok, err := v.source.HeaderHash(height)
	if err != nil {
		return false, fmt.Errorf("header hash lookup at height %d: %w", height, err)
	}
	if !ok {
		return false, nil
	}
	return got == want, nil
}

// WasTxMined reports whether txid (display order) is included in the block
// whose header is recorded at height. Only (true, nil) means verified; every
// failure carries an *SpvError code:
//
//	SPV_ERR_INVALID_HEADER_LENGTH   header is not 80 bytes
//	SPV_ERR_HEADER_HEIGHT_MISMATCH  header is not the one recorded at height
//	SPV_ERR_INVALID_MERKLE_PROOF    proof is well formed but leads elsewhere
//	SPV_ERR_PROOF_TOO_SHORT, ...    proof is malformed
func (v *Verifier) WasTxMined(height uint64, txid [32]byte, header []byte, proof MerkleProof) (bool, error) {
	root, err := ExtractMerkleRoot(header)
	if err != nil {
		return false, err
	}
	ok, err := v.VerifyBlockHeader(header, height)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, spverr(SPV_ERR_HEADER_HEIGHT_MISMATCH, fmt.Sprintf("header does not match height %d", height))
	}
	ok, err = VerifyMerkleProof(Reverse32(txid), root, proof)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, spverr(SPV_ERR_INVALID_MERKLE_PROOF, "merkle root mismatch")
	}
	return true, nil
}
