package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrEmailTaken is returned by Create when another principal already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// Roles carried in session claims.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Principal is a registered account. The token engine only reads identity fields from it
// to embed as claims.
type Principal struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	DeviceID     string // device the principal registered from
	PasswordHash string // empty for passwordless accounts
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the principal for persistence and fills the default role.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	if p.Role == "" {
		p.Role = RoleMember
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
