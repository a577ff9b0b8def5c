package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-credential-engine/internal/revocation/domain"
)

// DefaultRedisPrefix namespaces revocation keys.
const DefaultRedisPrefix = "revoked:"

// RedisRepository keeps each blacklisted token id as a key whose TTL is the remaining token
// lifetime, so Redis expires entries on its own.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
	nowF   func() time.Time
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository returns a revocation store on client. An empty prefix uses DefaultRedisPrefix.
func NewRedisRepository(client redis.Cmdable, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix, nowF: time.Now}
}

// Blacklist stores tokenID with SET NX PX so concurrent callers race on a single command.
func (r *RedisRepository) Blacklist(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.nowF())
	if ttl <= 0 {
		return domain.ErrAlreadyExpired
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := r.client.SetNX(ctx, r.prefix+tokenID, expiresAt.Unix(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyRevoked
	}
	return nil
}

// IsBlacklisted reports whether the key for tokenID exists.
func (r *RedisRepository) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
