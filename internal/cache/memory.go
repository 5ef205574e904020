package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	value       []byte
	storedAt    time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// MemoryCache is an in-process cache with TTL expiry, a size cap with
// least-used eviction and a background cleanup loop.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int

	hits      int64
	misses    int64
	evictions int64
	cleanups  int64

	stop chan struct{}
	done chan struct{}
}

// NewMemoryCache creates a memory cache and starts its cleanup loop.
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

// Get retrieves a value and unmarshals it into dest. Expired entries count as
// misses and are dropped.
func (c *MemoryCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		c.mu.Unlock()
		return ErrMiss
	}
	e.accessCount++
	e.lastAccess = time.Now()
	c.hits++
	value := e.value
	c.mu.Unlock()

	return json.Unmarshal(value, dest)
}

// Set stores a value under key for ttl. When the cache is full, the entry
// with the fewest accesses (oldest access on ties) is evicted first.
func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = &entry{
		value:    data,
		storedAt: time.Now(),
		ttl:      ttl,
	}
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) evictLocked() {
	if len(c.entries) == 0 {
		return
	}
	var victim string
	var victimEntry *entry
	for key, e := range c.entries {
		if victimEntry == nil ||
			e.accessCount < victimEntry.accessCount ||
			(e.accessCount == victimEntry.accessCount && e.lastAccess.Before(victimEntry.lastAccess)) {
			victim = key
			victimEntry = e
		}
	}
	delete(c.entries, victim)
	c.evictions++
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.cleanups++
	}
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Cleanups:  c.cleanups,
		Size:      len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Close stops the cleanup loop.
func (c *MemoryCache) Close() error {
	close(c.stop)
	<-c.done
	return nil
}
