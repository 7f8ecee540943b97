package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the stored form of a bearer token. Raw tokens are never
// persisted; lookups compare fingerprints.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
