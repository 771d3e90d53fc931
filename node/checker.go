package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"btcspv.dev/spv/node/metrics"
	"btcspv.dev/spv/spv"
)

// Checker is the instrumented front of spv.Verifier. Header hashes always come
// from the local store; the optional ProofSource only supplies candidate
// headers and paths, which are then verified.
type Checker struct {
	verifier *spv.Verifier
	source   ProofSource
	logger   *slog.Logger
}

// TxCheck is the outcome of CheckTx.
type TxCheck struct {
	TxID        [32]byte
	BlockHeight uint64
	BlockHash   [32]byte
	Header      []byte
	Proof       spv.MerkleProof
	Mined       bool
}

func NewChecker(hashes spv.HeaderHashSource, source ProofSource, logger *slog.Logger) (*Checker, error) {
	v, err := spv.NewVerifier(hashes)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Checker{verifier: v, source: source, logger: logger}, nil
}

func (c *Checker) Verifier() *spv.Verifier { return c.verifier }

func (c *Checker) VerifyBlockHeader(header []byte, height uint64) (bool, error) {
	ok, err := c.verifier.VerifyBlockHeader(header, height)
	metrics.ObserveVerification("verify_block_header", ok, err)
	c.logger.Debug("verify block header", "height", height, "ok", ok, "error", err)
	return ok, err
}

func (c *Checker) VerifyMerkleProof(leaf, root [32]byte, proof spv.MerkleProof) (bool, error) {
	ok, err := spv.VerifyMerkleProof(leaf, root, proof)
	metrics.ObserveVerification("verify_merkle_proof", ok, err)
	c.logger.Debug("verify merkle proof", "leaf_index", proof.LeafIndex, "depth", proof.Depth, "ok", ok, "error", err)
	return ok, err
}

func (c *Checker) WasTxMined(height uint64, txid [32]byte, header []byte, proof spv.MerkleProof) (bool, error) {
	ok, err := c.verifier.WasTxMined(height, txid, header, proof)
	metrics.ObserveVerification("was_tx_mined", ok, err)
	if err != nil {
		c.logger.Info("transaction not proven", "txid", fmt.Sprintf("%x", txid), "height", height, "code", spv.CodeOf(err), "error", err)
	} else {
		c.logger.Debug("transaction proven", "txid", fmt.Sprintf("%x", txid), "height", height)
	}
	return ok, err
}

// CheckTx asks the source where txid was mined and proves it against the
// local store. txid is in display order.
func (c *Checker) CheckTx(ctx context.Context, txid [32]byte) (*TxCheck, error) {
	if c.source == nil {
		return nil, errors.New("checker has no proof source")
	}
	raw, err := c.source.TxMerkleProof(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("merkle proof: %w", err)
	}
	proof, err := raw.Proof()
	if err != nil {
		return nil, err
	}
	hash, err := c.source.BlockHash(ctx, raw.BlockHeight)
	if err != nil {
		return nil, fmt.Errorf("block hash at %d: %w", raw.BlockHeight, err)
	}
	header, err := c.source.BlockHeader(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("block header %x: %w", hash, err)
	}
	out := &TxCheck{
		TxID:        txid,
		BlockHeight: raw.BlockHeight,
		BlockHash:   hash,
		Header:      header,
		Proof:       proof,
	}
	mined, err := c.WasTxMined(raw.BlockHeight, txid, header, proof)
	out.Mined = mined
	return out, err
}

// BuildProof fetches the block holding txid at height and builds the proof
// locally instead of trusting the source's path.
func BuildProof(ctx context.Context, source ProofSource, height uint64, txid [32]byte) (*spv.ProofData, error) {
	if source == nil {
		return nil, errors.New("no proof source")
	}
	hash, err := source.BlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("block hash at %d: %w", height, err)
	}
	raw, err := source.RawBlock(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("raw block %x: %w", hash, err)
	}
	block, err := spv.ParseBlock(raw)
	if err != nil {
		return nil, err
	}
	if block.Hash() != hash {
		return nil, fmt.Errorf("block hashes to %x, source claimed %x", block.Hash(), hash)
	}
	return spv.ProofDataForTxID(block, height, txid)
}
