package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Cleanups  int64   `json:"cleanups"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache stores JSON-serializable values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() Stats
	Close() error
}
