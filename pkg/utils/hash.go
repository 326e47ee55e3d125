package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashString returns a hex sha256 digest, used for cache keys.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives a stable chunk identifier from its document and position.
func ChunkID(documentID string, page, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", documentID, page, index)))
	return hex.EncodeToString(sum[:16])
}
