package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btcspv.dev/spv/node/store"
	"btcspv.dev/spv/spv"
)

const regtestHeight = 3538

var regtestFixture = filepath.Join("..", "..", "spv", "testdata", "regtest_3538.hex")

func loadRegtest(t *testing.T) *spv.Block {
	t.Helper()
	src, err := os.ReadFile(regtestFixture)
	require.NoError(t, err)
	raw, err := hex.DecodeString(strings.TrimSpace(string(src)))
	require.NoError(t, err)
	block, err := spv.ParseBlock(raw)
	require.NoError(t, err)
	return block
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func recordHeight(t *testing.T, datadir string, height uint64, block *spv.Block) {
	t.Helper()
	db, err := store.Open(datadir, "regtest")
	require.NoError(t, err)
	require.NoError(t, db.PutHeader(height, block.Hash(), block.HeaderBytes))
	require.NoError(t, db.Close())
}

func proofArgs(t *testing.T, block *spv.Block, index int) []string {
	t.Helper()
	pd, err := spv.ProofDataFromBlock(block, regtestHeight, index)
	require.NoError(t, err)
	args := []string{
		"--txid", displayHex(pd.TxID),
		"--header", hex.EncodeToString(pd.Header),
		"--index", strconv.FormatUint(pd.TxIndex, 10),
	}
	if path := displayPath(pd.Proof); len(path) > 0 {
		args = append(args, "--path", strings.Join(path, ","))
	}
	return args
}

func TestDryRunPrintsConfig(t *testing.T) {
	dir := t.TempDir()
	code, out, stderr := runCLI(t, "--dry-run", "--network", "regtest", "--datadir", dir, "--max-concurrency", "3")
	require.Equal(t, 0, code, stderr)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "regtest", cfg["network"])
	assert.Equal(t, dir, cfg["data_dir"])
	assert.Equal(t, float64(3), cfg["max_concurrency"])
	assert.Equal(t, "", cfg["esplora_url"])
}

func TestConfigFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "spv.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("network: signet\nlog_level: debug\nrequest_timeout: 3s\n"), 0o600))
	t.Setenv("SPV_MAX_RETRIES", "7")

	code, out, stderr := runCLI(t, "--dry-run", "--config", cfgPath, "--datadir", dir)
	require.Equal(t, 0, code, stderr)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "signet", cfg["network"])
	assert.Equal(t, "debug", cfg["log_level"])
	assert.Equal(t, float64(7), cfg["max_retries"])
	assert.Equal(t, float64(3e9), cfg["request_timeout"])
	assert.Equal(t, "https://blockstream.info/signet/api", cfg["esplora_url"])
}

func TestInvalidConfigExitsTwo(t *testing.T) {
	code, _, stderr := runCLI(t, "--dry-run", "--store", "leveldb", "--datadir", t.TempDir())
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "store_backend")
}

func TestVerifyProofCommand(t *testing.T) {
	block := loadRegtest(t)
	for i := range block.Txs {
		args := append([]string{"verify-proof", "--datadir", t.TempDir()}, proofArgs(t, block, i)...)
		code, out, stderr := runCLI(t, args...)
		require.Equal(t, 0, code, "tx %d: %s %s", i, out, stderr)
		assert.Contains(t, out, `"verified": true`)
	}

	args := append([]string{"verify-proof", "--datadir", t.TempDir()}, proofArgs(t, block, 1)...)
	args = append(args, "--index", "0")
	code, out, _ := runCLI(t, args...)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"verified": false`)
}

func TestVerifyHeaderCommand(t *testing.T) {
	block := loadRegtest(t)
	dir := t.TempDir()
	header := hex.EncodeToString(block.HeaderBytes)

	code, out, _ := runCLI(t, "verify-header", "--network", "regtest", "--datadir", dir, "--height", "3538", "--header", header)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"verified": false`)

	recordHeight(t, dir, regtestHeight, block)
	code, out, stderr := runCLI(t, "verify-header", "--network", "regtest", "--datadir", dir, "--height", "3538", "--header", header)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"verified": true`)

	code, out, _ = runCLI(t, "verify-header", "--network", "regtest", "--datadir", dir, "--height", "3538", "--header", header[:20])
	assert.Equal(t, 1, code)
	assert.Contains(t, out, string(spv.SPV_ERR_INVALID_HEADER_LENGTH))
}

func TestWasMinedCommand(t *testing.T) {
	block := loadRegtest(t)
	dir := t.TempDir()
	base := []string{"was-mined", "--network", "regtest", "--datadir", dir, "--height", "3538"}

	code, out, _ := runCLI(t, append(base, proofArgs(t, block, 2)...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, string(spv.SPV_ERR_HEADER_HEIGHT_MISMATCH))

	recordHeight(t, dir, regtestHeight, block)
	code, out, stderr := runCLI(t, append(base, proofArgs(t, block, 2)...)...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"verified": true`)

	// No path and index 0: the txid is compared to the root directly.
	short := append(base, proofArgs(t, block, 2)[:6]...)
	code, out, _ = runCLI(t, append(short, "--index", "0")...)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, string(spv.SPV_ERR_INVALID_MERKLE_PROOF))

	code, out, _ = runCLI(t, append(short, "--index", "2")...)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, string(spv.SPV_ERR_LEAF_INDEX_RANGE))
}

func TestWasMinedCommandUsesStoredHeader(t *testing.T) {
	block := loadRegtest(t)
	dir := t.TempDir()
	full := proofArgs(t, block, 1)
	noHeader := append([]string{"was-mined", "--network", "regtest", "--datadir", dir, "--height", "3538"}, full[:2]...)
	noHeader = append(noHeader, full[4:]...)

	code, _, stderr := runCLI(t, noHeader...)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no header recorded at height 3538")

	recordHeight(t, dir, regtestHeight, block)
	code, out, stderr := runCLI(t, noHeader...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"verified": true`)

	verifyProof := append([]string{"verify-proof", "--network", "regtest", "--datadir", dir}, full[:2]...)
	code, _, stderr = runCLI(t, verifyProof...)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "header")
}

func TestProofCommandFromBlockFile(t *testing.T) {
	block := loadRegtest(t)
	txid := spv.Reverse32(block.Txs[1].TxID)
	code, out, stderr := runCLI(t, "proof", "--network", "regtest", "--datadir", t.TempDir(),
		"--height", "3538", "--txid", displayHex(txid), "--block-file", regtestFixture)
	require.Equal(t, 0, code, stderr)

	var got proofOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, displayHex(txid), got.TxID)
	assert.Equal(t, uint64(1), got.TxIndex)
	assert.Equal(t, uint32(2), got.Depth)
	assert.Equal(t, "d564f1a4e53e7bad92f67c9a05b748e504ac1b8155db4c2d9b4ed12afd32139f", got.Path[0])

	code, _, _ = runCLI(t, "proof", "--network", "regtest", "--datadir", t.TempDir(),
		"--height", "3538", "--txid", strings.Repeat("00", 32), "--block-file", regtestFixture)
	assert.Equal(t, 1, code)
}

func TestProofCommandHeightFromCoinbase(t *testing.T) {
	block := loadRegtest(t)
	txid := spv.Reverse32(block.Txs[2].TxID)
	code, out, stderr := runCLI(t, "proof", "--network", "regtest", "--datadir", t.TempDir(),
		"--txid", displayHex(txid), "--block-file", regtestFixture)
	require.Equal(t, 0, code, stderr)

	var got proofOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint64(regtestHeight), got.BlockHeight)

	code, _, stderr = runCLI(t, "proof", "--network", "regtest", "--datadir", t.TempDir(),
		"--height", "3537", "--txid", displayHex(txid), "--block-file", regtestFixture)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, string(spv.SPV_ERR_BLOCK_HEIGHT))

	code, _, stderr = runCLI(t, "proof", "--network", "regtest", "--datadir", t.TempDir(),
		"--txid", displayHex(txid))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--height required")
}

func TestCheckTxCommand(t *testing.T) {
	block := loadRegtest(t)
	hash := block.Hash()
	txid := spv.Reverse32(block.Txs[0].TxID)
	pd, err := spv.ProofDataFromBlock(block, regtestHeight, 0)
	require.NoError(t, err)
	proofBody, err := json.Marshal(map[string]any{
		"block_height": regtestHeight,
		"merkle":       displayPath(pd.Proof),
		"pos":          0,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/block-height/3538", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(displayHex(hash)))
	})
	mux.HandleFunc("/block/"+displayHex(hash)+"/header", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hex.EncodeToString(block.HeaderBytes)))
	})
	mux.HandleFunc("/tx/"+displayHex(txid)+"/merkle-proof", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(proofBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	recordHeight(t, dir, regtestHeight, block)
	code, out, stderr := runCLI(t, "check-tx", displayHex(txid), "--network", "regtest", "--datadir", dir,
		"--esplora-url", srv.URL, "--max-retries", "0")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"verified": true`)
	assert.Contains(t, out, displayHex(hash))
}

func TestCommandsNeedingEsploraFailOnRegtestWithoutURL(t *testing.T) {
	code, _, stderr := runCLI(t, "sync", "--network", "regtest", "--datadir", t.TempDir())
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "esplora_url")
}

func TestTipCommand(t *testing.T) {
	block := loadRegtest(t)
	dir := t.TempDir()
	code, out, _ := runCLI(t, "tip", "--network", "regtest", "--datadir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"empty": true`)

	recordHeight(t, dir, regtestHeight, block)
	code, out, _ = runCLI(t, "tip", "--network", "regtest", "--datadir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, displayHex(block.Hash()))
}
