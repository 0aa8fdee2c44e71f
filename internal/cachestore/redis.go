package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a Redis-compatible server. Values are
// zstd-compressed on the wire.
type RedisStore struct {
	client *redis.Client
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// OpenRedis connects to the Redis server described by a redis:// URL.
// The connection is established lazily; an unreachable server surfaces as
// errors from Get/Set.
func OpenRedis(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts))
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RedisStore{client: client, enc: enc, dec: dec}, nil
}

// Get returns the decompressed value for key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	val, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value compressed under key with the given ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, s.enc.EncodeAll(value, nil), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the client and codec.
func (s *RedisStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.client.Close()
}
