package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

func HashSecretSHA256(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokensEqual compares two bearer tokens in constant time. Hashing first
// keeps the comparison independent of the tokens' lengths.
func TokensEqual(presented, expected string) bool {
	if expected == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Fingerprint returns a short, log-safe identifier for a token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	return HashSecretSHA256(token)[:12]
}
