package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the Redis key.
const DefaultRedisPrefix = "portal:credential:"

// Redis stores the token under a single Redis key.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// RedisOption customizes a Redis store.
type RedisOption func(*Redis)

// WithRedisTTL expires the stored token after ttl. Zero keeps it forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis creates a store on client. An empty key uses DefaultKey.
func NewRedis(client redis.UniversalClient, key string, opts ...RedisOption) *Redis {
	if key == "" {
		key = DefaultKey
	}
	r := &Redis{client: client, key: DefaultRedisPrefix + key}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Key returns the full Redis key.
func (r *Redis) Key() string {
	return r.key
}

// Get implements authclient.CredentialStore.
func (r *Redis) Get(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get credential: %w", err)
	}
	return token, nil
}

// Set implements authclient.CredentialStore.
func (r *Redis) Set(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.key, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

// Clear implements authclient.CredentialStore.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete credential: %w", err)
	}
	return nil
}
