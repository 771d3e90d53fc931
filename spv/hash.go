package spv

import "crypto/sha256"

// Hash256 is Bitcoin's double SHA-256. Headers and Merkle nodes are hashed the same way.
func Hash256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// HashPair hashes the raw 64-byte concatenation left||right.
func HashPair(left, right [32]byte) [32]byte {
	var pre [64]byte
	copy(pre[:32], left[:])
	copy(pre[32:], right[:])
	return Hash256(pre[:])
}
