package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const verifierKeyPrefix = "oauth:pkce:"

// RedisStore keeps verifiers in Redis so every replica can serve the callback.
// Expiry is delegated to Redis and Take uses GETDEL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// OpenRedisStore parses redisURL, checks connectivity and returns the store.
func OpenRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

func (r *RedisStore) Put(ctx context.Context, state, verifier string) error {
	if err := r.client.Set(ctx, verifierKeyPrefix+state, verifier, r.ttl).Err(); err != nil {
		return fmt.Errorf("store verifier: %w", err)
	}
	return nil
}

func (r *RedisStore) Take(ctx context.Context, state string) (string, bool, error) {
	v, err := r.client.GetDel(ctx, verifierKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take verifier: %w", err)
	}
	return v, true, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
