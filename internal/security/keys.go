package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidKey is returned when PEM or key type is invalid.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyMismatch is returned when the public key is not the pair of the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Inline PEM may carry literal "\n" sequences (common in env files); they are turned into newlines.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		default:
			return nil, ErrInvalidKey
		}
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
		return ""
	default:
		return ""
	}
}

// KeyProvider holds the asymmetric session signing key pair. The private key never leaves the
// provider: callers sign through Sign and verify through Keyfunc. Immutable after construction.
type KeyProvider struct {
	signer crypto.Signer
	public crypto.PublicKey
	method jwt.SigningMethod
}

// NewKeyProvider parses both keys (inline PEM or file paths) and checks that they form a pair.
// Returns ErrInvalidKey if either is missing, malformed or of an unsupported type, and
// ErrKeyMismatch if the public key does not belong to the private key.
func NewKeyProvider(privateKey, publicKey string) (*KeyProvider, error) {
	if strings.TrimSpace(privateKey) == "" || strings.TrimSpace(publicKey) == "" {
		return nil, ErrInvalidKey
	}
	signer, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return newKeyProvider(signer, pub)
}

func newKeyProvider(signer crypto.Signer, pub crypto.PublicKey) (*KeyProvider, error) {
	var method jwt.SigningMethod
	switch KeyAlg(pub) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	eq, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !eq.Equal(pub) {
		return nil, ErrKeyMismatch
	}
	return &KeyProvider{signer: signer, public: pub, method: method}, nil
}

// Algorithm returns the JWT alg header value produced by Sign ("RS256" or "ES256").
func (k *KeyProvider) Algorithm() string {
	return k.method.Alg()
}

// Sign returns the compact JWS of claims signed with the private key.
func (k *KeyProvider) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(k.method, claims).SignedString(k.signer)
}

// Keyfunc returns the verification key for tokens whose alg matches the provider's algorithm.
// Tokens declaring any other algorithm (including "none" and HMAC) are rejected.
func (k *KeyProvider) Keyfunc(token *jwt.Token) (interface{}, error) {
	if token.Method == nil || token.Method.Alg() != k.method.Alg() {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return k.public, nil
}
