package spv

import "fmt"

// MaxProofDepth caps the sibling list. A tree this deep covers 16384 transactions.
const MaxProofDepth = 14

// MerkleProof is the path from one transaction up to the Merkle root.
// Siblings are ordered bottom to top.
type MerkleProof struct {
	LeafIndex uint64
	Siblings  [][32]byte
	Depth     uint32
}

type proofStep struct {
	sibling       [32]byte
	siblingOnLeft bool
}

// steps pairs every sibling with the side it sits on. Bit i of the leaf index
// (least significant first) is the turn taken at level i: a set bit means the
// running hash is a right child.
func (p MerkleProof) steps() []proofStep {
	out := make([]proofStep, 0, p.Depth)
	for i := uint32(0); i < p.Depth; i++ {
		out = append(out, proofStep{
			sibling:       p.Siblings[i],
			siblingOnLeft: (p.LeafIndex>>i)&1 == 1,
		})
	}
	return out
}

// Validate checks the proof shape without hashing anything.
func (p MerkleProof) Validate() error {
	if p.Depth > MaxProofDepth {
		return spverr(SPV_ERR_PROOF_TOO_SHORT, fmt.Sprintf("depth %d exceeds cap %d", p.Depth, MaxProofDepth))
	}
	if uint64(len(p.Siblings)) < uint64(p.Depth) {
		return spverr(SPV_ERR_PROOF_TOO_SHORT, fmt.Sprintf("have %d sibling hashes, depth %d", len(p.Siblings), p.Depth))
	}
	if uint64(len(p.Siblings)) > uint64(p.Depth) {
		return spverr(SPV_ERR_PROOF_TOO_LONG, fmt.Sprintf("have %d sibling hashes, depth %d", len(p.Siblings), p.Depth))
	}
	if p.LeafIndex >= uint64(1)<<p.Depth {
		return spverr(SPV_ERR_LEAF_INDEX_RANGE, fmt.Sprintf("leaf index %d does not fit depth %d", p.LeafIndex, p.Depth))
	}
	return nil
}

// ComputeRoot folds the proof over leaf and returns the implied Merkle root.
func (p MerkleProof) ComputeRoot(leaf [32]byte) ([32]byte, error) {
	if err := p.Validate(); err != nil {
		return [32]byte{}, err
	}
	cur := leaf
	for _, s := range p.steps() {
		if s.siblingOnLeft {
			cur = HashPair(s.sibling, cur)
		} else {
			cur = HashPair(cur, s.sibling)
		}
	}
	return cur, nil
}

// VerifyMerkleProof reports whether leaf is included under root. Both hashes are
// in internal byte order. A malformed proof is an error; a well-formed proof
// that leads to a different root is (false, nil).
func VerifyMerkleProof(leaf, root [32]byte, proof MerkleProof) (bool, error) {
	// Depth 0 is a single-transaction block: the txid is the root.
	got, err := proof.ComputeRoot(leaf)
	if err != nil {
		return false, err
	}
	return got == root, nil
}
