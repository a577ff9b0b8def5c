package service

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/session/domain"
)

// sessionClaims is the JWT payload. token_type is only present on refresh tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

func (c *sessionClaims) toDomain() *domain.Claims {
	out := &domain.Claims{
		Subject:     c.Subject,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Role:        c.Role,
		DeviceID:    c.DeviceID,
		TokenID:     c.ID,
		TokenType:   domain.TokenTypeAccess,
	}
	if c.TokenType == string(domain.TokenTypeRefresh) {
		out.TokenType = domain.TokenTypeRefresh
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

// revocationKey returns the key a token is blacklisted under: its jti read from the unverified
// payload, or the sha256 of the raw string when no jti can be read.
func revocationKey(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) == 3 {
		if payload, err := base64.RawURLEncoding.DecodeString(parts[1]); err == nil {
			var c struct {
				ID string `json:"jti"`
			}
			if json.Unmarshal(payload, &c) == nil && c.ID != "" {
				return c.ID
			}
		}
	}
	return security.HashToken(token)
}
