package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-credential-engine/internal/loginlink/domain"
)

// DefaultRedisPrefix namespaces login link keys.
const DefaultRedisPrefix = "loginlink:"

// RedisRepository stores each link as a JSON value with a PX expiry and consumes it with GETDEL.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository returns a link store on client. An empty prefix uses DefaultRedisPrefix.
func NewRedisRepository(client redis.Cmdable, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

// Put stores link with SET PX ttl.
func (r *RedisRepository) Put(ctx context.Context, link *domain.Link, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("login link ttl must be positive")
	}
	b, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+link.Token, b, ttl).Err()
}

// GetAndDelete consumes the link with a single GETDEL.
func (r *RedisRepository) GetAndDelete(ctx context.Context, token string) (*domain.Link, error) {
	b, err := r.client.GetDel(ctx, r.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var link domain.Link
	if err := json.Unmarshal(b, &link); err != nil {
		return nil, fmt.Errorf("decode login link: %w", err)
	}
	return &link, nil
}
