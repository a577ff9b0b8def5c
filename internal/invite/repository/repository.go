package repository

import (
	"context"
	"time"

	"chat-credential-engine/internal/invite/domain"
)

// Repository persists invites. Redemption is split into two conditional updates so each
// backend can express it as a single atomic statement.
type Repository interface {
	// Create inserts an unused invite. Returns domain.ErrDuplicateToken if the token exists.
	Create(ctx context.Context, inv *domain.Invite) error
	// GetByToken returns the invite with exactly this token, or (nil, nil) if none.
	GetByToken(ctx context.Context, token string) (*domain.Invite, error)
	// MarkUsed sets used, used_by=userID and used_at=now only where
	// token matches AND used is false AND expires_at > now. Returns the number of records updated.
	MarkUsed(ctx context.Context, token, userID string, now time.Time) (int64, error)
	// ResetUsed clears used, used_by and used_at only where token matches AND used_by=userID.
	// Returns the number of records updated.
	ResetUsed(ctx context.Context, token, userID string) (int64, error)
}
