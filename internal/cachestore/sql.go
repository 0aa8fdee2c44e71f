package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

// Dialect selects the embedded SQL engine backing an SQLStore.
type Dialect string

// Supported SQL dialects (database/sql driver names).
const (
	DialectDuckDB Dialect = "duckdb"
	DialectSQLite Dialect = "sqlite"
)

// SQLStore is a Store backed by an embedded SQL database. Expired rows are
// purged lazily on read and by Purge.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQL opens or creates a cache database at path. An empty path (DuckDB)
// or ":memory:" (SQLite) gives an in-memory store.
func OpenSQL(dialect Dialect, path string) (*SQLStore, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open(string(dialect), path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// Each SQLite connection to :memory: is a separate database, and
		// file databases serialize writers anyway.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS score_cache (
		key VARCHAR PRIMARY KEY,
		value BLOB,
		expires_at BIGINT
	)`)
	return err
}

// Get returns the value for key if present and not expired.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM score_cache WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s cache lookup: %w", s.dialect, err)
	}

	if s.now().UnixNano() >= expiresAt {
		s.db.ExecContext(ctx, "DELETE FROM score_cache WHERE key = ?", key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous entry.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixNano()
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO score_cache (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	); err != nil {
		return fmt.Errorf("%s cache set: %w", s.dialect, err)
	}
	return nil
}

// Purge deletes all expired entries and returns how many were removed.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM score_cache WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%s cache purge: %w", s.dialect, err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
