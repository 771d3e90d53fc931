package spv

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func mustHex32(t *testing.T, s string) [32]byte {
	t.Helper()
	b := mustHex(t, s)
	if len(b) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

func loadBlockHex(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name+".hex"))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return mustHex(t, strings.TrimSpace(string(raw)))
}

func mustParseBlock(t *testing.T, name string) *Block {
	t.Helper()
	b, err := ParseBlock(loadBlockHex(t, name))
	if err != nil {
		t.Fatalf("ParseBlock(%s): %v", name, err)
	}
	return b
}

// syntheticTxids returns n distinct leaves.
func syntheticTxids(n int) [][32]byte {
	out := make([][32]byte, n)
	for i := range out {
		out[i] = Hash256([]byte{byte(i), byte(i >> 8), byte(i >> 16), 0x5a})
	}
	return out
}

func staticSource(entries map[uint64][32]byte) HeaderHashSource {
	return HeaderHashFunc(func(height uint64) ([32]byte, bool, error) {
		h, ok := entries[height]
		return h, ok, nil
	})
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if !IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
