package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// TokenBytes is the number of random bytes behind every opaque token (256 bits).
const TokenBytes = 32

// RandomToken returns n bytes from crypto/rand encoded as unpadded URL-safe base64.
// n below TokenBytes is rejected so that no caller can mint a token under 256 bits of entropy.
func RandomToken(n int) (string, error) {
	if n < TokenBytes {
		return "", errors.New("random token must be at least 32 bytes")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
