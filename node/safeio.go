package node

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"btcspv.dev/spv/spv"
)

func readFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return readFileFromDir(dir, name)
}

func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

// LoadBlockFile reads a serialized block from path, either raw bytes or hex
// text as served by block explorers.
func LoadBlockFile(path string) (*spv.Block, error) {
	b, err := readFileByPath(path)
	if err != nil {
		return nil, err
	}
	if text := strings.TrimSpace(string(b)); isHex(text) {
		if decoded, err := hex.DecodeString(text); err == nil {
			b = decoded
		}
	}
	return spv.ParseBlock(b)
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
