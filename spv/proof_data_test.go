package spv

import (
	"encoding/hex"
	"testing"
)

func TestProofDataFromBlockRegtest(t *testing.T) {
	block := mustParseBlock(t, "regtest_3538")
	pd, err := ProofDataFromBlock(block, 3538, 0)
	if err != nil {
		t.Fatalf("ProofDataFromBlock: %v", err)
	}
	if hex.EncodeToString(pd.TxID[:]) != "d564f1a4e53e7bad92f67c9a05b748e504ac1b8155db4c2d9b4ed12afd32139f" {
		t.Fatalf("txid %x", pd.TxID)
	}
	if pd.Proof.Depth != 2 || pd.Proof.LeafIndex != 0 {
		t.Fatalf("proof shape: %+v", pd.Proof)
	}
	want := []string{
		"30955a1f27461b4ca06d68147a377a585d05499d186853a2e05e21cf4f9bf55f",
		"b4a7cc817198247161027ab3584b0c6a1bd2f7319d6468d2c6e128ec3acb2a47",
	}
	for i, w := range want {
		if hex.EncodeToString(pd.Proof.Siblings[i][:]) != w {
			t.Fatalf("sibling %d: %x want %s", i, pd.Proof.Siblings[i], w)
		}
	}
	if pd.MerkleRoot != block.Header.MerkleRoot {
		t.Fatalf("root mismatch")
	}

	v, _ := NewVerifier(staticSource(map[uint64][32]byte{3538: block.Hash()}))
	ok, err := pd.Verify(v)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
}

func TestProofDataFromBlockTestnetIndex4(t *testing.T) {
	block := mustParseBlock(t, "testnet_2529382")
	pd, err := ProofDataFromBlock(block, 2529382, 4)
	if err != nil {
		t.Fatalf("ProofDataFromBlock: %v", err)
	}
	want := []string{
		"a9db8b2c0b4de3ee6945db550541adcc18852acef9148dc59747a31c9fbf8327",
		"de7c38d3e809bcb86fa94695de178e1b27d8d9b6d25a5683b598c36deca50580",
		"02f0523e28df15bf268ab52b9a3826d7f933467ea2708c0d7e7d7cd5b2e44892",
		"7f37d80a06a9c7d9db4cf14d63e826ecf136b59df3583cb2b94e0a438d3ae506",
	}
	if int(pd.Proof.Depth) != len(want) {
		t.Fatalf("depth %d", pd.Proof.Depth)
	}
	for i, w := range want {
		if hex.EncodeToString(pd.Proof.Siblings[i][:]) != w {
			t.Fatalf("sibling %d: %x want %s", i, pd.Proof.Siblings[i], w)
		}
	}
}

func TestProofDataFromBlockIndexRange(t *testing.T) {
	block := mustParseBlock(t, "testnet_100000")
	for _, idx := range []int{-1, 1, 50} {
		if _, err := ProofDataFromBlock(block, 100000, idx); !IsCode(err, SPV_ERR_TX_INDEX) {
			t.Fatalf("index %d: %v", idx, err)
		}
	}
	if _, err := ProofDataFromBlock(nil, 0, 0); !IsCode(err, SPV_ERR_EMPTY) {
		t.Fatalf("nil block: %v", err)
	}
	pd, err := ProofDataFromBlock(block, 100000, 0)
	if err != nil {
		t.Fatalf("ProofDataFromBlock: %v", err)
	}
	if pd.Proof.Depth != 0 || len(pd.Proof.Siblings) != 0 {
		t.Fatalf("single-tx block proof: %+v", pd.Proof)
	}
}

func TestProofDataForTxID(t *testing.T) {
	block := mustParseBlock(t, "testnet_2529382")
	txid := mustHex32(t, "07268a427a3e0a0618fe94dcf434cd976c0cd29f2b0d645315ec56c4b04393a4")
	pd, err := ProofDataForTxID(block, 2529382, txid)
	if err != nil {
		t.Fatalf("ProofDataForTxID: %v", err)
	}
	if pd.TxIndex != 4 || pd.TxID != txid {
		t.Fatalf("unexpected proof data: index=%d txid=%x", pd.TxIndex, pd.TxID)
	}
	if _, err := ProofDataForTxID(block, 2529382, Reverse32(txid)); !IsCode(err, SPV_ERR_TX_INDEX) {
		t.Fatalf("internal-order txid must not match: %v", err)
	}
	if _, err := ProofDataForTxID(nil, 0, txid); !IsCode(err, SPV_ERR_EMPTY) {
		t.Fatalf("nil block: %v", err)
	}
}

func TestProofDataRejectsHeightNotInCoinbase(t *testing.T) {
	block := mustParseBlock(t, "testnet_100000")
	if _, err := ProofDataFromBlock(block, 5, 0); !IsCode(err, SPV_ERR_BLOCK_HEIGHT) {
		t.Fatalf("expected SPV_ERR_BLOCK_HEIGHT, got %v", err)
	}

	block = mustParseBlock(t, "testnet_2529382")
	txid := mustHex32(t, "07268a427a3e0a0618fe94dcf434cd976c0cd29f2b0d645315ec56c4b04393a4")
	if _, err := ProofDataForTxID(block, 2529381, txid); !IsCode(err, SPV_ERR_BLOCK_HEIGHT) {
		t.Fatalf("expected SPV_ERR_BLOCK_HEIGHT, got %v", err)
	}
}
