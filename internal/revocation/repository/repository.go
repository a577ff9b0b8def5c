package repository

import (
	"context"
	"time"
)

// Repository is the revocation store: a set of blacklisted token ids, each kept until the
// token's own expiry.
type Repository interface {
	// Blacklist records tokenID until expiresAt. It is an atomic insert-if-absent: if the id is
	// already blacklisted it returns domain.ErrAlreadyRevoked. An expiresAt not after now stores
	// nothing and returns domain.ErrAlreadyExpired.
	Blacklist(ctx context.Context, tokenID string, expiresAt time.Time) error
	// IsBlacklisted reports whether tokenID is currently blacklisted.
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
}
