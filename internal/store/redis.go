package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
)

// RedisStore handles Redis operations for rate limiting and caching.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter and IP blocker.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// cacheKey namespaces cache entries.
func cacheKey(key string) string {
	return fmt.Sprintf("cache:%s", key)
}

// CacheGet decodes the cached JSON value for key into dest.
// It reports false when the key is absent.
func (s *RedisStore) CacheGet(ctx context.Context, key string, dest any) (bool, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, cacheKey(key)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// CacheSet stores v as JSON under key for ttl.
func (s *RedisStore) CacheSet(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.client.Set(ctx, cacheKey(key), data, ttl).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// CacheDelete drops a cached entry.
func (s *RedisStore) CacheDelete(ctx context.Context, key string) error {
	return s.client.Del(ctx, cacheKey(key)).Err()
}
