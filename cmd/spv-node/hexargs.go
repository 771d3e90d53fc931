package main

import (
	"encoding/hex"
	"strings"

	"btcspv.dev/spv/spv"
)

// Hashes on the command line and in output are display order, as explorers
// print them.

func parseDisplayHash(name, s string) ([32]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return [32]byte{}, usageErr("%s: bad hex: %v", name, err)
	}
	if len(b) != 32 {
		return [32]byte{}, usageErr("%s: want 32 bytes, got %d", name, len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}

func parseHeaderHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, usageErr("header: bad hex: %v", err)
	}
	return b, nil
}

// parseProof builds a MerkleProof from display-order sibling hashes.
func parseProof(index uint64, path []string) (spv.MerkleProof, error) {
	siblings := make([][32]byte, 0, len(path))
	for i, p := range path {
		h, err := parseDisplayHash("path", p)
		if err != nil {
			return spv.MerkleProof{}, usageErr("path[%d]: %v", i, err)
		}
		siblings = append(siblings, spv.Reverse32(h))
	}
	return spv.MerkleProof{
		LeafIndex: index,
		Siblings:  siblings,
		Depth:     uint32(len(siblings)), // #nosec G115 -- CLI input, capped by Validate.
	}, nil
}

func displayHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func displayPath(p spv.MerkleProof) []string {
	out := make([]string, 0, len(p.Siblings))
	for _, s := range p.Siblings {
		out = append(out, displayHex(spv.Reverse32(s)))
	}
	return out
}

type proofOutput struct {
	TxID        string   `json:"txid"`
	TxIndex     uint64   `json:"tx_index"`
	BlockHeight uint64   `json:"block_height"`
	Header      string   `json:"header"`
	MerkleRoot  string   `json:"merkle_root"`
	Path        []string `json:"path"`
	Depth       uint32   `json:"depth"`
}

func newProofOutput(pd *spv.ProofData) proofOutput {
	return proofOutput{
		TxID:        displayHex(pd.TxID),
		TxIndex:     pd.TxIndex,
		BlockHeight: pd.BlockHeight,
		Header:      hex.EncodeToString(pd.Header),
		MerkleRoot:  displayHex(spv.Reverse32(pd.MerkleRoot)),
		Path:        displayPath(pd.Proof),
		Depth:       pd.Proof.Depth,
	}
}

type verifyOutput struct {
	Verified bool   `json:"verified"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newVerifyOutput(ok bool, err error) verifyOutput {
	out := verifyOutput{Verified: ok && err == nil}
	if err != nil {
		out.Code = string(spv.CodeOf(err))
		out.Error = err.Error()
	}
	return out
}
