package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Commit generates a cryptographically random server seed and the sha256
// commitment that is published before betting opens. A failing entropy
// source is a hard error: the caller must not open a round on a weak seed.
func Commit() (seed string, hash string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("seed generation failed: %w", err)
	}

	seed = hex.EncodeToString(bytes)

	h := sha256.Sum256([]byte(seed))
	hash = hex.EncodeToString(h[:])

	return seed, hash, nil
}

// Verify reports whether seed rehashes to the previously published commitment.
func Verify(seed, hash string) bool {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:]) == hash
}
