package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// Package cache provides in-memory TTL caching to reduce redundant operations.
//
// Responsibilities:
//   - Cache document search results (avoid redundant index round trips)
//   - Cache assembled answers for identical follow-up queries
//   - Manage cache lifetime and invalidation
//   - Monitor cache hit/miss rates
//
// Cache Key Strategy:
//   - Component name + serialized parameters
//   - Example: search:activ assure:waiting period → unique key
//
// Invalidation Triggers:
//   - TTL expiration (automatic, janitor goroutine)
//   - Rate table reload (premium answers may change)
//   - Manual invalidation by key pattern
//
// Memory Management:
//   - Least-recently-used eviction when the entry cap is reached
//   - Configurable max entries

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a cached value by key.
	// Returns: value, found (bool), error
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Set stores a value with given key and TTL.
	// ttlSeconds: time to live in seconds (0 = never expire)
	Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from cache.
	Clear(ctx context.Context) error

	// Invalidate removes all keys matching a glob pattern
	// (e.g. "search:*").
	Invalidate(ctx context.Context, pattern string) error

	// Has checks if key exists and is not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Stats returns cache statistics.
	Stats(ctx context.Context) (Stats, error)

	// Close stops the background janitor.
	Close() error
}

// Stats holds cache counters since startup.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Entries   int   `json:"entries"`
	Evictions int64 `json:"evictions"`
}

type entry struct {
	value      interface{}
	expiresAt  time.Time // zero means never
	lastAccess time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryCache is the in-memory implementation of Cache.
type memoryCache struct {
	name       string
	maxEntries int

	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats

	janitor  *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCache creates an in-memory cache. name labels the hit/miss metrics,
// maxEntries bounds memory (0 means unbounded), and cleanupInterval drives
// the expired-entry janitor.
func NewCache(name string, maxEntries int, cleanupInterval time.Duration) Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &memoryCache{
		name:       name,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		janitor:    time.NewTicker(cleanupInterval),
		stopCh:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *memoryCache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		if ok {
			delete(c.entries, key)
		}
		c.stats.Misses++
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false, nil
	}

	e.lastAccess = now
	c.stats.Hits++
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return e.value, true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error {
	now := time.Now()
	var expiresAt time.Time
	if ttlSeconds > 0 {
		expiresAt = now.Add(time.Duration(ttlSeconds) * time.Second)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = &entry{value: value, expiresAt: expiresAt, lastAccess: now}
	return nil
}

// evictLocked drops expired entries, then the least recently used one if the
// cache is still full. Caller must hold the lock.
func (c *memoryCache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var lruKey string
	var lruTime time.Time
	for k, e := range c.entries {
		if lruKey == "" || e.lastAccess.Before(lruTime) {
			lruKey = k
			lruTime = e.lastAccess
		}
	}
	if lruKey != "" {
		delete(c.entries, lruKey)
		c.stats.Evictions++
	}
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		matched, err := path.Match(pattern, k)
		if err != nil {
			return err
		}
		if matched {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memoryCache) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *memoryCache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s, nil
}

func (c *memoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.janitor.Stop()
	})
	return nil
}

func (c *memoryCache) cleanupLoop() {
	for {
		select {
		case <-c.janitor.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
					c.stats.Evictions++
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
