package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

// ErrCiphertext is returned when a sealed message is truncated or fails authentication.
var ErrCiphertext = errors.New("invalid ciphertext")

// MessageCipher seals and opens chat message payloads with AES-256-GCM. The sealed form is
// nonce || ciphertext || tag. Safe for concurrent use.
//
// The engine itself never stores message bodies. MessageCipher is the key-discipline surface
// it exports to the message subsystem: that subsystem must obtain its content key here, derived
// from the shared master secret under PurposeMessageContent, so it never shares key material
// with invite signing or any other purpose.
type MessageCipher struct {
	aead cipher.AEAD
}

// NewMessageCipher derives the message-content key from master and returns a cipher for it.
func NewMessageCipher(master []byte) (*MessageCipher, error) {
	key, err := DeriveKey(master, PurposeMessageContent, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &MessageCipher{aead: aead}, nil
}

// Seal encrypts plaintext, binding it to additionalData (e.g. the conversation id).
func (c *MessageCipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a payload produced by Seal. Any tampering yields ErrCiphertext.
func (c *MessageCipher) Open(sealed, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, ErrCiphertext
	}
	plaintext, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], additionalData)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plaintext, nil
}
