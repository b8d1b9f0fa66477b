package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

// MultiLevelCache reads through a process-local L1 and an optional shared L2.
// L2 calls go through a circuit breaker; when it is open the cache keeps
// serving from L1 alone and reports ErrCacheDown for L2 failures.
//
// Deletes that fail to reach L2 are remembered and replayed ahead of the next
// L2 call, so an entry removed during an outage is never read back from L2.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      Cache
	l1TTL   time.Duration
	breaker *CircuitBreaker
	metrics *CacheMetrics

	// generation counts deletes; L2 values are promoted into L1 only if no
	// delete ran while they were being read.
	generation atomic.Uint64

	mu              sync.Mutex
	pendingKeys     map[string]struct{}
	pendingPatterns map[string]struct{}
}

type MultiLevelConfig struct {
	L1MaxEntries   int
	L1TTL          time.Duration
	CircuitBreaker *CircuitBreakerConfig
}

// NewMultiLevelCache builds the cache; l2 may be nil for an L1-only setup.
func NewMultiLevelCache(l2 Cache, config *MultiLevelConfig) *MultiLevelCache {
	if config == nil {
		config = &MultiLevelConfig{}
	}
	l1TTL := config.L1TTL
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}

	return &MultiLevelCache{
		l1:      NewMemoryCache(config.L1MaxEntries),
		l2:      l2,
		l1TTL:   l1TTL,
		breaker: NewCircuitBreaker(config.CircuitBreaker),
		metrics: NewCacheMetrics(),

		pendingKeys:     make(map[string]struct{}),
		pendingPatterns: make(map[string]struct{}),
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		c.metrics.RecordError()
		return err
	}
	c.metrics.RecordSet()

	return c.remote(ctx, func() error { return c.l2.Set(ctx, key, value, ttl) })
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		c.metrics.RecordHit()
		return nil
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	gen := c.generation.Load()
	var getErr error
	err := c.remote(ctx, func() error {
		getErr = c.l2.Get(ctx, key, dest)
		if errors.Is(getErr, ErrCacheMiss) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return err
	}
	if getErr != nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordHit()
	if c.generation.Load() == gen {
		_ = c.l1.Set(ctx, key, dest, c.l1TTL)
		if c.generation.Load() != gen {
			_ = c.l1.Delete(ctx, key)
		}
	}
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.generation.Add(1)
	_ = c.l1.Delete(ctx, keys...)
	c.metrics.RecordDelete()

	err := c.remote(ctx, func() error { return c.l2.Delete(ctx, keys...) })
	if err != nil {
		c.mu.Lock()
		for _, key := range keys {
			c.pendingKeys[key] = struct{}{}
		}
		c.mu.Unlock()
	}
	return err
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.generation.Add(1)
	if err := c.l1.DeletePattern(ctx, pattern); err != nil {
		return err
	}
	c.metrics.RecordDelete()

	err := c.remote(ctx, func() error { return c.l2.DeletePattern(ctx, pattern) })
	if err != nil {
		c.mu.Lock()
		c.pendingPatterns[pattern] = struct{}{}
		c.mu.Unlock()
	}
	return err
}

// remote runs fn against L2 through the breaker, after replaying any deletes
// L2 has missed. A nil L2 is a no-op.
func (c *MultiLevelCache) remote(ctx context.Context, fn func() error) error {
	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(func() error {
		if err := c.replayPending(ctx); err != nil {
			return err
		}
		return fn()
	})
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("%w: %v", ErrCacheDown, err)
	}
	return nil
}

func (c *MultiLevelCache) replayPending(ctx context.Context) error {
	c.mu.Lock()
	keys := slices.Collect(maps.Keys(c.pendingKeys))
	patterns := slices.Collect(maps.Keys(c.pendingPatterns))
	c.mu.Unlock()

	if len(keys) > 0 {
		if err := c.l2.Delete(ctx, keys...); err != nil {
			return err
		}
	}
	for _, pattern := range patterns {
		if err := c.l2.DeletePattern(ctx, pattern); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for _, key := range keys {
		delete(c.pendingKeys, key)
	}
	for _, pattern := range patterns {
		delete(c.pendingPatterns, pattern)
	}
	c.mu.Unlock()
	return nil
}

func (c *MultiLevelCache) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingKeys) + len(c.pendingPatterns)
}

func (c *MultiLevelCache) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":                    c.l1.Stats(),
		"metrics":               c.metrics.Snapshot(),
		"breaker":               c.breaker.GetStats(),
		"pending_invalidations": c.pendingCount(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
