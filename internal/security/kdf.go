package security

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes for DeriveKey. Each purpose yields an independent key from the same master secret.
const (
	PurposeInviteHMAC     = "chat-credential-engine/invite-hmac/v1"
	PurposeMessageContent = "chat-credential-engine/message-aes-gcm/v1"
)

// MinMasterSecretLen is the minimum master secret length in bytes.
const MinMasterSecretLen = 32

// ErrWeakSecret is returned when the master secret is shorter than MinMasterSecretLen.
var ErrWeakSecret = errors.New("master secret too short")

// DeriveKey derives a size-byte key for purpose from master using HKDF-SHA256.
func DeriveKey(master []byte, purpose string, size int) ([]byte, error) {
	if len(master) < MinMasterSecretLen {
		return nil, ErrWeakSecret
	}
	if size <= 0 {
		return nil, errors.New("key size must be positive")
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(purpose)), key); err != nil {
		return nil, err
	}
	return key, nil
}
