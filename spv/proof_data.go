package spv

import "fmt"

// ProofData is everything a bridge call needs to prove one transaction was
// mined: the txid in display order, its position, the header and the path.
type ProofData struct {
	TxID        [32]byte
	TxIndex     uint64
	BlockHeight uint64
	Header      []byte
	Proof       MerkleProof
	MerkleRoot  [32]byte // internal byte order, as in the header
}

// ProofDataFromBlock builds the proof for the transaction at index in block.
// A block that commits to its height in the coinbase (BIP34) must commit to
// height.
func ProofDataFromBlock(block *Block, height uint64, index int) (*ProofData, error) {
	if block == nil {
		return nil, spverr(SPV_ERR_EMPTY, "nil block")
	}
	if index < 0 || index >= len(block.Txs) {
		return nil, spverr(SPV_ERR_TX_INDEX, fmt.Sprintf("tx index %d out of range (%d txs)", index, len(block.Txs)))
	}
	committed, ok, err := block.BIP34Height()
	if err != nil {
		return nil, err
	}
	if ok && committed != height {
		return nil, spverr(SPV_ERR_BLOCK_HEIGHT, fmt.Sprintf("coinbase commits to height %d, not %d", committed, height))
	}
	tree := NewMerkleTree(block.TxIDs())
	proof, err := tree.Proof(uint64(index))
	if err != nil {
		return nil, err
	}
	root, _ := tree.Root()
	if root != block.Header.MerkleRoot {
		return nil, spverr(SPV_ERR_INVALID_MERKLE_PROOF, "computed merkle root differs from header")
	}
	return &ProofData{
		TxID:        Reverse32(block.Txs[index].TxID),
		TxIndex:     uint64(index),
		BlockHeight: height,
		Header:      append([]byte(nil), block.HeaderBytes...),
		Proof:       proof,
		MerkleRoot:  root,
	}, nil
}

func (p *ProofData) Verify(v *Verifier) (bool, error) {
	return v.WasTxMined(p.BlockHeight, p.TxID, p.Header, p.Proof)
}

// ProofDataForTxID finds txid (display order) in block and builds its proof.
func ProofDataForTxID(block *Block, height uint64, txid [32]byte) (*ProofData, error) {
	if block == nil {
		return nil, spverr(SPV_ERR_EMPTY, "nil block")
	}
	leaf := Reverse32(txid)
	for i, tx := range block.Txs {
		if tx.TxID == leaf {
			return ProofDataFromBlock(block, height, i)
		}
	}
	return nil, spverr(SPV_ERR_TX_INDEX, fmt.Sprintf("tx %x not in block", txid))
}
