package domain

import (
	"errors"
	"time"
)

// ErrAlreadyRevoked is returned by Blacklist when the token id is already present. Callers that
// rotate credentials treat it as a lost race.
var ErrAlreadyRevoked = errors.New("token already revoked")

// ErrAlreadyExpired is returned by Blacklist when expiresAt is not after now. Nothing is stored;
// the token is rejected on expiry alone.
var ErrAlreadyExpired = errors.New("token already expired")

// Entry is a blacklisted token id. ExpiresAt is copied from the token; once it passes the token
// is rejected on expiry alone and the entry can be dropped.
type Entry struct {
	TokenID   string
	ExpiresAt time.Time
}

// Expired reports whether the entry no longer needs to be kept at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
