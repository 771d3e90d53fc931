package node

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"btcspv.dev/spv/spv"
)

// mineChain builds n linked regtest-difficulty headers on top of prev
// (internal order) and returns them with their display-order hashes.
func mineChain(t *testing.T, n int, prev [32]byte) ([][]byte, [][32]byte) {
	t.Helper()
	headers := make([][]byte, 0, n)
	hashes := make([][32]byte, 0, n)
	for i := 0; i < n; i++ {
		h := make([]byte, spv.BlockHeaderBytes)
		binary.LittleEndian.PutUint32(h[0:4], 0x20000000)
		copy(h[4:36], prev[:])
		root := spv.Hash256([]byte(fmt.Sprintf("root-%d", i)))
		copy(h[36:68], root[:])
		binary.LittleEndian.PutUint32(h[68:72], uint32(1700000000+600*i))
		binary.LittleEndian.PutUint32(h[72:76], 0x207fffff)
		for nonce := uint32(0); ; nonce++ {
			binary.LittleEndian.PutUint32(h[76:80], nonce)
			if spv.CheckProofOfWork(h) == nil {
				break
			}
		}
		hash, err := spv.BlockHash(h)
		require.NoError(t, err)
		headers = append(headers, h)
		hashes = append(hashes, hash)
		prev = spv.Reverse32(hash)
	}
	return headers, hashes
}

type fakeSource struct {
	mu        sync.Mutex
	tip       uint64
	byHeight  map[uint64][32]byte
	headers   map[[32]byte][]byte
	blocks    map[[32]byte][]byte
	proofs    map[[32]byte]*TxMerkleProof
	failAt    map[uint64]error
	hashCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		byHeight: map[uint64][32]byte{},
		headers:  map[[32]byte][]byte{},
		blocks:   map[[32]byte][]byte{},
		proofs:   map[[32]byte]*TxMerkleProof{},
		failAt:   map[uint64]error{},
	}
}

func (f *fakeSource) add(height uint64, hash [32]byte, header []byte) {
	f.byHeight[height] = hash
	f.headers[hash] = header
	if height > f.tip {
		f.tip = height
	}
}

func (f *fakeSource) TipHeight(context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeSource) BlockHash(_ context.Context, height uint64) ([32]byte, error) {
	f.mu.Lock()
	f.hashCalls++
	f.mu.Unlock()
	if err := f.failAt[height]; err != nil {
		return [32]byte{}, err
	}
	h, ok := f.byHeight[height]
	if !ok {
		return h, fmt.Errorf("no block at %d", height)
	}
	return h, nil
}

func (f *fakeSource) BlockHeader(_ context.Context, hash [32]byte) ([]byte, error) {
	h, ok := f.headers[hash]
	if !ok {
		return nil, errors.New("unknown block")
	}
	return append([]byte(nil), h...), nil
}

func (f *fakeSource) RawBlock(_ context.Context, hash [32]byte) ([]byte, error) {
	b, ok := f.blocks[hash]
	if !ok {
		return nil, errors.New("unknown block")
	}
	return b, nil
}

func (f *fakeSource) TxMerkleProof(_ context.Context, txid [32]byte) (*TxMerkleProof, error) {
	p, ok := f.proofs[txid]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	return p, nil
}

func loadFixtureBlock(t *testing.T, name string) ([]byte, *spv.Block) {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("..", "spv", "testdata", name+".hex"))
	require.NoError(t, err)
	raw, err := hex.DecodeString(strings.TrimSpace(string(src)))
	require.NoError(t, err)
	block, err := spv.ParseBlock(raw)
	require.NoError(t, err)
	return raw, block
}

// esploraProof renders the path for tx index as Esplora would.
func esploraProof(t *testing.T, block *spv.Block, height uint64, index int) *TxMerkleProof {
	t.Helper()
	proof, err := spv.NewMerkleTree(block.TxIDs()).Proof(uint64(index))
	require.NoError(t, err)
	out := &TxMerkleProof{BlockHeight: height, Pos: uint64(index), Merkle: []string{}}
	for _, s := range proof.Siblings {
		d := spv.Reverse32(s)
		out.Merkle = append(out.Merkle, hex.EncodeToString(d[:]))
	}
	return out
}
