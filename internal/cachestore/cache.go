package cachestore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/flight"
)

// ComputeFunc produces the value for a cache miss. store reports whether the
// value may be written to the cache.
type ComputeFunc func(ctx context.Context) (value []byte, store bool, err error)

// Cache fronts an optional Store. Store failures are logged and treated as
// misses; caching never affects correctness. A nil Store disables caching
// but keeps single-flight deduplication.
type Cache struct {
	store   Store
	ttl     time.Duration
	flights flight.Group[result]
	logger  *zap.Logger
}

type result struct {
	value []byte
	hit   bool
}

// New creates a Cache over store (which may be nil). A non-positive ttl
// selects DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, logger: zap.NewNop()}
}

// SetLogger sets the logger for cache degradation warnings.
func (c *Cache) SetLogger(l *zap.Logger) {
	c.logger = l
}

// TTL returns the lifetime applied to entries written by Set and Do.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Enabled returns true if a backing store is configured.
func (c *Cache) Enabled() bool {
	return c.store != nil
}

// Get returns the cached value for key. Store errors are logged and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	val, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed, continuing uncached",
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}
	return val, found
}

// Set writes value under key with the cache TTL. Store errors are logged
// and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("cache set failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Do returns the cached value for key, or runs compute exactly once across
// all concurrent callers for key and caches its result. hit reports whether
// the value came from the store.
func (c *Cache) Do(ctx context.Context, key string, compute ComputeFunc) (value []byte, hit bool, err error) {
	r, _, err := c.flights.Do(ctx, key, func(ctx context.Context) (result, error) {
		if val, ok := c.Get(ctx, key); ok {
			return result{value: val, hit: true}, nil
		}
		val, store, err := compute(ctx)
		if err != nil {
			return result{}, err
		}
		if store {
			c.Set(ctx, key, val)
		}
		return result{value: val}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return r.value, r.hit, nil
}

// InFlight returns the number of keys currently being computed.
func (c *Cache) InFlight() int {
	return c.flights.InFlight()
}

// Close closes the backing store, if any.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
