package cachestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.Nil(t, s, "empty url disables caching")

	_, err = Open("memcached://localhost:11211")
	assert.Error(t, err)

	s, err = Open("duckdb://")
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open("sqlite://" + filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())
}

func TestSQLStore_SetGetExpire(t *testing.T) {
	for _, dialect := range []Dialect{DialectDuckDB, DialectSQLite} {
		t.Run(string(dialect), func(t *testing.T) {
			path := ""
			if dialect == DialectSQLite {
				path = ":memory:"
			}
			s, err := OpenSQL(dialect, path)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })

			now := time.Unix(1_700_000_000, 0)
			s.now = func() time.Time { return now }
			ctx := context.Background()

			_, found, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), time.Hour))
			val, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{"a":1}`, string(val))

			// Overwrite replaces the entry.
			require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`), time.Hour))
			val, _, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(val))

			now = now.Add(2 * time.Hour)
			_, found, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, found, "expired entry")

			require.NoError(t, s.Set(ctx, "old", []byte("x"), time.Minute))
			now = now.Add(time.Hour)
			n, err := s.Purge(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestRedisStore_RoundTripAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, found, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	payload := []byte(`{"sequence_disruption":0.42}`)
	require.NoError(t, s.Set(ctx, "seqscore:v1:k", payload, time.Hour))

	val, found, err := s.Get(ctx, "seqscore:v1:k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, val)

	raw, err := mr.Get("seqscore:v1:k")
	require.NoError(t, err)
	assert.NotEqual(t, string(payload), raw, "value is compressed on the wire")

	mr.FastForward(2 * time.Hour)
	_, found, err = s.Get(ctx, "seqscore:v1:k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "k", []byte("v"), time.Minute))
}
