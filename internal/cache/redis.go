package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coinspread:"

// RedisCache stores entries in Redis with native TTLs. Hit/miss counters are
// tracked locally; size and evictions are Redis' concern.
type RedisCache struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value and unmarshals it into dest.
func (r *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.misses.Add(1)
			return ErrMiss
		}
		return fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	r.hits.Add(1)
	return nil
}

// Set stores a value under key with the given TTL.
func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes a key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Stats reports the locally tracked counters.
func (r *RedisCache) Stats() Stats {
	s := Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Ping checks the Redis connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx).Result()
	return err
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
