package spv

import "fmt"

// MerkleTree keeps every row of a Bitcoin transaction Merkle tree, leaves
// first. Rows with an odd number of entries pair the last one with itself.
type MerkleTree struct {
	rows [][][32]byte
}

// NewMerkleTree builds the tree over txids given in internal byte order.
func NewMerkleTree(txids [][32]byte) *MerkleTree {
	if len(txids) == 0 {
		return &MerkleTree{}
	}
	level := append([][32]byte(nil), txids...)
	rows := [][][32]byte{level}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashPair(level[i], right))
		}
		rows = append(rows, next)
		level = next
	}
	return &MerkleTree{rows: rows}
}

func (t *MerkleTree) Root() ([32]byte, bool) {
	if t == nil || len(t.rows) == 0 {
		return [32]byte{}, false
	}
	return t.rows[len(t.rows)-1][0], true
}

// Depth is the number of hashing levels between a leaf and the root.
func (t *MerkleTree) Depth() uint32 {
	if t == nil || len(t.rows) == 0 {
		return 0
	}
	return uint32(len(t.rows) - 1) // #nosec G115 -- at most 64 rows for any int-sized leaf count.
}

// Proof returns the sibling path for the leaf at index.
func (t *MerkleTree) Proof(index uint64) (MerkleProof, error) {
	if t == nil || len(t.rows) == 0 {
		return MerkleProof{}, spverr(SPV_ERR_EMPTY, "merkle: empty tree")
	}
	if index >= uint64(len(t.rows[0])) {
		return MerkleProof{}, spverr(SPV_ERR_TX_INDEX, fmt.Sprintf("merkle: leaf %d out of range (%d leaves)", index, len(t.rows[0])))
	}
	depth := t.Depth()
	if depth > MaxProofDepth {
		return MerkleProof{}, spverr(SPV_ERR_PROOF_TOO_SHORT, fmt.Sprintf("merkle: tree depth %d exceeds cap %d", depth, MaxProofDepth))
	}

	siblings := make([][32]byte, 0, depth)
	pos := index
	for _, row := range t.rows[:len(t.rows)-1] {
		sib := pos ^ 1
		if sib >= uint64(len(row)) {
			sib = pos
		}
		siblings = append(siblings, row[sib])
		pos >>= 1
	}
	return MerkleProof{LeafIndex: index, Siblings: siblings, Depth: depth}, nil
}

// MerkleRootTxids is NewMerkleTree(txids).Root() with an error for an empty list.
func MerkleRootTxids(txids [][32]byte) ([32]byte, error) {
	root, ok := NewMerkleTree(txids).Root()
	if !ok {
		return root, spverr(SPV_ERR_EMPTY, "merkle: empty tx list")
	}
	return root, nil
}
