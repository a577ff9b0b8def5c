package repository

import (
	"context"
	"time"

	"chat-credential-engine/internal/loginlink/domain"
)

// Repository stores login links keyed by token.
type Repository interface {
	// Put stores link under link.Token with a hard ttl; the record is unreachable after it.
	Put(ctx context.Context, link *domain.Link, ttl time.Duration) error
	// GetAndDelete atomically fetches and removes the link for token. Returns (nil, nil) when
	// no record exists. Of any number of concurrent callers for one token, at most one gets it.
	GetAndDelete(ctx context.Context, token string) (*domain.Link, error)
}
