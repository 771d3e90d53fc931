package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"btcspv.dev/spv/spv"
)

// All hashes are hex in internal (wire) byte order unless a field says
// otherwise; this is the order conformance vectors are written in.
type Request struct {
	Op        string   `json:"op"`
	DataHex   string   `json:"data_hex,omitempty"`
	HashHex   string   `json:"hash,omitempty"`
	HeaderHex string   `json:"header_hex,omitempty"`
	TxHex     string   `json:"tx_hex,omitempty"`
	BlockHex  string   `json:"block_hex,omitempty"`
	Txids     []string `json:"txids,omitempty"`
	Leaf      string   `json:"leaf,omitempty"`
	Root      string   `json:"root,omitempty"`
	Siblings  []string `json:"siblings,omitempty"`
	Index     uint64   `json:"index,omitempty"`
	Depth     *uint32  `json:"depth,omitempty"`
	Bits      uint32   `json:"bits,omitempty"`
	Height    uint64   `json:"height,omitempty"`
	// TxidDisplay is the display-order txid for was_mined.
	TxidDisplay string `json:"txid_display,omitempty"`
	// Known maps decimal heights to display-order header hashes.
	Known map[string]string `json:"known,omitempty"`
}

type Response struct {
	Ok        bool     `json:"ok"`
	Err       string   `json:"err,omitempty"`
	HashHex   string   `json:"hash,omitempty"`
	Hashes    []string `json:"hashes,omitempty"`
	Root      string   `json:"root,omitempty"`
	Siblings  []string `json:"siblings,omitempty"`
	Depth     uint32   `json:"depth,omitempty"`
	Consumed  int      `json:"consumed,omitempty"`
	Verified  bool     `json:"verified,omitempty"`
	TargetHex string   `json:"target,omitempty"`
	// Height is the BIP34 coinbase height, when the block commits to one.
	Height *uint64 `json:"height,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func writeSpvErr(w io.Writer, err error) {
	if code := spv.CodeOf(err); code != "" {
		writeResp(w, Response{Ok: false, Err: string(code)})
		return
	}
	writeResp(w, Response{Ok: false, Err: err.Error()})
}

func parseExactHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("bad hash")
	}
	copy(out[:], b)
	return out, nil
}

func parseHex32List(items []string, badErr string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(items))
	for _, item := range items {
		h, err := parseExactHex32(item)
		if err != nil {
			return nil, fmt.Errorf("%s", badErr)
		}
		out = append(out, h)
	}
	return out, nil
}

func hexList(items [][32]byte) []string {
	out := make([]string, 0, len(items))
	for _, h := range items {
		out = append(out, hex.EncodeToString(h[:]))
	}
	return out
}

func hex32(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func runFromStdin() {
	run(os.Stdin, os.Stdout)
}

func run(r io.Reader, w io.Writer) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		writeResp(w, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}

	switch req.Op {
	case "hash256":
		data, err := hex.DecodeString(req.DataHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		writeResp(w, Response{Ok: true, HashHex: hex32(spv.Hash256(data))})

	case "reverse32":
		b, err := hex.DecodeString(req.HashHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		h, err := spv.ReverseHash(b)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, HashHex: hex32(h)})

	case "block_hash":
		header, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		h, err := spv.BlockHash(header)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		root, _ := spv.ExtractMerkleRoot(header)
		writeResp(w, Response{Ok: true, HashHex: hex32(h), Root: hex32(root)})

	case "check_pow":
		header, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		if err := spv.CheckProofOfWork(header); err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, Verified: true})

	case "compact_target":
		target, err := spv.CompactToTarget(req.Bits)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, TargetHex: hex32(target.Bytes32())})

	case "txid":
		txBytes, err := hex.DecodeString(req.TxHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		txid, n, err := spv.TxID(txBytes)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, HashHex: hex32(txid), Consumed: n})

	case "parse_block":
		raw, err := hex.DecodeString(req.BlockHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad hex"})
			return
		}
		block, err := spv.ParseBlock(raw)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		resp := Response{
			Ok:      true,
			HashHex: hex32(block.Hash()),
			Root:    hex32(block.Header.MerkleRoot),
			Hashes:  hexList(block.TxIDs()),
		}
		if height, ok, err := block.BIP34Height(); err == nil && ok {
			resp.Height = &height
		}
		writeResp(w, resp)

	case "merkle_root":
		txids, err := parseHex32List(req.Txids, "bad txid")
		if err != nil {
			writeResp(w, Response{Ok: false, Err: err.Error()})
			return
		}
		root, err := spv.MerkleRootTxids(txids)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, Root: hex32(root)})

	case "merkle_proof":
		txids, err := parseHex32List(req.Txids, "bad txid")
		if err != nil {
			writeResp(w, Response{Ok: false, Err: err.Error()})
			return
		}
		tree := spv.NewMerkleTree(txids)
		proof, err := tree.Proof(req.Index)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		root, _ := tree.Root()
		writeResp(w, Response{Ok: true, Root: hex32(root), Siblings: hexList(proof.Siblings), Depth: proof.Depth})

	case "verify_merkle_proof":
		proof, leaf, root, err := parseProofRequest(req)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: err.Error()})
			return
		}
		ok, err := spv.VerifyMerkleProof(leaf, root, proof)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, Response{Ok: true, Verified: ok})

	case "was_mined":
		resp, err := runWasMined(req)
		if err != nil {
			writeSpvErr(w, err)
			return
		}
		writeResp(w, resp)

	default:
		writeResp(w, Response{Ok: false, Err: "unknown op"})
	}
}

func parseProofRequest(req Request) (spv.MerkleProof, [32]byte, [32]byte, error) {
	var leaf, root [32]byte
	siblings, err := parseHex32List(req.Siblings, "bad sibling")
	if err != nil {
		return spv.MerkleProof{}, leaf, root, err
	}
	depth := uint32(len(siblings)) // #nosec G115 -- request-sized; Validate caps depth.
	if req.Depth != nil {
		depth = *req.Depth
	}
	proof := spv.MerkleProof{LeafIndex: req.Index, Siblings: siblings, Depth: depth}
	if req.Op == "was_mined" {
		return proof, leaf, root, nil
	}
	if leaf, err = parseExactHex32(req.Leaf); err != nil {
		return proof, leaf, root, fmt.Errorf("bad leaf")
	}
	if root, err = parseExactHex32(req.Root); err != nil {
		return proof, leaf, root, fmt.Errorf("bad root")
	}
	return proof, leaf, root, nil
}

func runWasMined(req Request) (Response, error) {
	proof, _, _, err := parseProofRequest(req)
	if err != nil {
		return Response{}, err
	}
	txid, err := parseExactHex32(req.TxidDisplay)
	if err != nil {
		return Response{}, fmt.Errorf("bad txid")
	}
	header, err := hex.DecodeString(req.HeaderHex)
	if err != nil {
		return Response{}, fmt.Errorf("bad hex")
	}
	known := make(map[uint64][32]byte, len(req.Known))
	for k, v := range req.Known {
		var height uint64
		if _, err := fmt.Sscanf(k, "%d", &height); err != nil {
			return Response{}, fmt.Errorf("bad height %q", k)
		}
		h, err := parseExactHex32(v)
		if err != nil {
			return Response{}, fmt.Errorf("bad known hash")
		}
		known[height] = h
	}
	v, err := spv.NewVerifier(spv.HeaderHashFunc(func(height uint64) ([32]byte, bool, error) {
		h, ok := known[height]
		return h, ok, nil
	}))
	if err != nil {
		return Response{}, err
	}
	ok, err := v.WasTxMined(req.Height, txid, header, proof)
	if err != nil {
		return Response{}, err
	}
	return Response{Ok: true, Verified: ok}, nil
}
