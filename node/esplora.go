package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"btcspv.dev/spv/node/metrics"
	"btcspv.dev/spv/spv"
)

// ChainSource is the untrusted view of the chain the indexer syncs from.
// Hashes are in display order.
type ChainSource interface {
	TipHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) ([32]byte, error)
	BlockHeader(ctx context.Context, hash [32]byte) ([]byte, error)
}

// ProofSource additionally serves raw blocks and per-tx Merkle paths.
type ProofSource interface {
	ChainSource
	RawBlock(ctx context.Context, hash [32]byte) ([]byte, error)
	TxMerkleProof(ctx context.Context, txid [32]byte) (*TxMerkleProof, error)
}

// TxMerkleProof is the Esplora /tx/:txid/merkle-proof body. Merkle entries
// are display-order hex.
type TxMerkleProof struct {
	BlockHeight uint64   `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         uint64   `json:"pos"`
}

// Proof converts the response into an internal-order MerkleProof.
func (p *TxMerkleProof) Proof() (spv.MerkleProof, error) {
	siblings := make([][32]byte, 0, len(p.Merkle))
	for i, s := range p.Merkle {
		b, err := hex.DecodeString(s)
		if err != nil {
			return spv.MerkleProof{}, errors.Wrapf(err, "merkle[%d]", i)
		}
		h, err := spv.ReverseHash(b)
		if err != nil {
			return spv.MerkleProof{}, errors.WithMessagef(err, "merkle[%d]", i)
		}
		siblings = append(siblings, h)
	}
	return spv.MerkleProof{
		LeafIndex: p.Pos,
		Siblings:  siblings,
		Depth:     uint32(len(siblings)), // #nosec G115 -- bounded by response size; Validate caps depth.
	}, nil
}

type EsploraClient struct {
	http *resty.Client
}

func NewEsploraClient(baseURL string, timeout time.Duration, maxRetries int) *EsploraClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return &EsploraClient{http: c}
}

func (c *EsploraClient) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(path)
	metrics.SourceRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.WithMessagef(err, "esplora %s", path)
	}
	if resp.IsError() {
		return nil, errors.Errorf("esplora %s: status %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return resp.Body(), nil
}

func (c *EsploraClient) TipHeight(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "tip_height", "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, errors.WithMessage(err, "error parsing height")
	}
	metrics.ChainTip.Set(float64(height))
	return height, nil
}

func (c *EsploraClient) BlockHash(ctx context.Context, height uint64) ([32]byte, error) {
	body, err := c.get(ctx, "block_height", "/block-height/"+strconv.FormatUint(height, 10))
	if err != nil {
		return [32]byte{}, err
	}
	return parseHashHex(string(body))
}

func (c *EsploraClient) BlockHeader(ctx context.Context, hash [32]byte) ([]byte, error) {
	body, err := c.get(ctx, "block_header", "/block/"+hex.EncodeToString(hash[:])+"/header")
	if err != nil {
		return nil, err
	}
	header, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, "header hex")
	}
	if len(header) != spv.BlockHeaderBytes {
		return nil, errors.Errorf("header length %d", len(header))
	}
	return header, nil
}

func (c *EsploraClient) RawBlock(ctx context.Context, hash [32]byte) ([]byte, error) {
	return c.get(ctx, "block_raw", "/block/"+hex.EncodeToString(hash[:])+"/raw")
}

func (c *EsploraClient) TxMerkleProof(ctx context.Context, txid [32]byte) (*TxMerkleProof, error) {
	body, err := c.get(ctx, "tx_merkle_proof", "/tx/"+hex.EncodeToString(txid[:])+"/merkle-proof")
	if err != nil {
		return nil, err
	}
	var out TxMerkleProof
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "merkle-proof json")
	}
	return &out, nil
}

func parseHashHex(s string) ([32]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "hash hex")
	}
	if len(b) != 32 {
		return [32]byte{}, errors.Errorf("hash length %d", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}
