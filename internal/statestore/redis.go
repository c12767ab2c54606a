package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"time"
)

const redisKeyPrefix = "plexgate:oauth_state:"

// RedisStore is a Store backed by Redis, for multi-instance deployments
// where login start and callback may land on different instances.
// Atomicity of Consume comes from GETDEL, a single server-side operation.
// Expiry is native Redis TTL, so CleanupExpired is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Put saves a record with Redis-native TTL.
func (s *RedisStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	now := time.Now().UTC()
	cp := *rec
	cp.CreatedAt = now
	cp.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshal state record: %w", err)
	}
	return s.client.Set(ctx, redisKeyPrefix+cp.State, data, ttl).Err()
}

// Consume atomically retrieves and deletes a record via GETDEL.
func (s *RedisStore) Consume(ctx context.Context, state string) (*Record, error) {
	data, err := s.client.GetDel(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal state record: %w", err)
	}
	if rec.Expired() {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// CleanupExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
