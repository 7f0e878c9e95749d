package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher computes the content-integrity digest stored alongside persisted
// messages. Verification is the backend's concern.
type Hasher interface {
	Hash(plaintext string) string
}

// Blake2bHasher hashes content with BLAKE2b-256.
type Blake2bHasher struct{}

// Hash returns the hex BLAKE2b-256 digest of plaintext.
func (Blake2bHasher) Hash(plaintext string) string {
	sum := blake2b.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
