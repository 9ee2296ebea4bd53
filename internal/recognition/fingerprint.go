package recognition

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the cache key for an upload: a collision-resistant hash
// of the raw image bytes, so identical re-uploads hit the embedding cache
// without re-running the model.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
