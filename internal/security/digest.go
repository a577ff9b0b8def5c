package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns a SHA-256 hash of the token string, hex-encoded.
// Used as a revocation key for token strings that carry no readable id, and as a log-safe
// fingerprint; raw tokens are never logged or stored as keys.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the first 12 hex characters of HashToken, for log fields.
func Fingerprint(token string) string {
	return HashToken(token)[:12]
}

// ConstantTimeEqual reports whether a and b are equal. Running time depends only on the
// lengths of the inputs, not on where the first differing byte is.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
