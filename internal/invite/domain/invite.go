package domain

import (
	"errors"
	"time"
)

// ErrDuplicateToken is returned by Create when the token already exists.
var ErrDuplicateToken = errors.New("invite token already exists")

// Invite is a persisted invite token. Used implies UsedBy and UsedAt are set; unused implies
// both are nil.
type Invite struct {
	Token     string
	InviterID string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedBy    *string
	UsedAt    *time.Time
}

// Info is the public view of an invite returned by validation.
type Info struct {
	InviterID string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Info returns the public fields of inv.
func (inv *Invite) Info() *Info {
	return &Info{
		InviterID: inv.InviterID,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		Used:      inv.Used,
	}
}

// Reason is why an invite failed validation. Empty for valid invites.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMalformed        Reason = "malformed"
	ReasonNotFound         Reason = "not_found"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonExpired          Reason = "expired"
	ReasonUsed             Reason = "used"
)

// Validation is the outcome of validating an invite token. Info is set whenever the record
// was found and its signature verified, including for expired and used invites.
type Validation struct {
	Valid  bool
	Reason Reason
	Info   *Info
}
