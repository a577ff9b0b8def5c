package domain

import "time"

// TokenType discriminates access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Reason is why a token failed validation. Empty for valid tokens.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonEmpty            Reason = "empty"
	ReasonRevoked          Reason = "revoked"
	ReasonExpired          Reason = "expired"
	ReasonMalformed        Reason = "malformed"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonWrongTokenType   Reason = "wrong_token_type"
	ReasonInvalid          Reason = "invalid"
)

// Claims is the identity carried by a session token.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	Role        string
	DeviceID    string
	TokenID     string
	TokenType   TokenType
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenPair is an access and refresh token issued together. A refresh replaces the whole pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Validation is the outcome of validating a token: Valid with Claims, or a Reason.
type Validation struct {
	Valid  bool
	Reason Reason
	Claims *Claims
}

// Invalid returns a failed Validation with reason.
func Invalid(reason Reason) Validation {
	return Validation{Reason: reason}
}
