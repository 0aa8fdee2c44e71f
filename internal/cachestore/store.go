// Package cachestore provides the TTL-bounded score cache: pluggable
// key/value stores (Redis, DuckDB, SQLite) and a Cache front that adds
// single-flight deduplication and fail-silent degradation.
package cachestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultTTL is the default lifetime of a cached score.
const DefaultTTL = 3600 * time.Second

// Store is a TTL key/value store. Implementations must be safe for
// concurrent use; Set must be atomic per key.
type Store interface {
	// Get returns the value for key. found is false for missing or expired keys.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Close releases the store's resources.
	Close() error
}

// Open opens the store described by rawURL. Supported schemes:
//
//	redis://[:password@]host:port/db   rediss://...   networked Redis-compatible cache
//	duckdb:///path/to/cache.db         duckdb://      DuckDB file (or in-memory)
//	sqlite:///path/to/cache.db         sqlite://      SQLite file (or in-memory)
//
// An empty URL returns a nil Store, meaning caching is disabled.
func Open(rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		return OpenRedis(rawURL)
	case "duckdb":
		return OpenSQL(DialectDuckDB, u.Path)
	case "sqlite":
		path := u.Path
		if path == "" {
			path = ":memory:"
		}
		return OpenSQL(DialectSQLite, path)
	default:
		return nil, fmt.Errorf("unsupported cache url scheme %q", u.Scheme)
	}
}
