// Package alphamissense provides AlphaMissense pathogenicity score lookups
// backed by DuckDB. AlphaMissense data is loaded from the official TSV files
// (Cheng et al., Science 2023, CC BY 4.0) and serves as an offline
// fused-missense backend when the remote service is unavailable.
package alphamissense

import (
	"bufio"
	"compress/gzip"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Store provides AlphaMissense score lookups backed by DuckDB.
type Store struct {
	db       *sql.DB
	lookupPS *sql.Stmt
}

// Result holds a single AlphaMissense lookup result.
type Result struct {
	Score float64
	Class string // likely_benign, ambiguous or likely_pathogenic
}

// Open opens or creates a DuckDB database for AlphaMissense data at the given
// path. Use an empty string for an in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	ps, err := db.Prepare(
		"SELECT am_pathogenicity, am_class FROM alphamissense WHERE chrom=? AND pos=? AND ref=? AND alt=? LIMIT 1",
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare lookup: %w", err)
	}
	s.lookupPS = ps

	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS alphamissense (
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		am_pathogenicity FLOAT,
		am_class VARCHAR
	)`); err != nil {
		return err
	}
	// Index for fast point lookups
	s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_am_lookup ON alphamissense (chrom, pos, ref, alt)`)
	return nil
}

// Loaded returns true if the AlphaMissense table has data.
func (s *Store) Loaded() bool {
	n, err := s.Count()
	return err == nil && n > 0
}

// Count returns the number of rows in the AlphaMissense table.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alphamissense").Scan(&count); err != nil {
		return 0, fmt.Errorf("count alphamissense rows: %w", err)
	}
	return count, nil
}

// Load replaces the table contents with a (optionally gzipped) AlphaMissense
// TSV. The official files start with comment lines and a #CHROM header:
//
//	#CHROM  POS  REF  ALT  genome  uniprot_id  transcript_id  protein_variant  am_pathogenicity  am_class
//
// Reduced files keeping only the first four columns plus am_pathogenicity
// and am_class are accepted too. Returns the number of rows loaded.
func (s *Store) Load(tsvPath string) (int64, error) {
	f, err := os.Open(tsvPath)
	if err != nil {
		return 0, fmt.Errorf("open alphamissense tsv: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(tsvPath, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	if _, err := s.db.Exec(`DELETE FROM alphamissense`); err != nil {
		return 0, fmt.Errorf("clear alphamissense: %w", err)
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return 0, fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "alphamissense")
		return err
	}); err != nil {
		return 0, fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	var n int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			continue
		}
		pos, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(fields[len(fields)-2], 32)
		if err != nil {
			continue
		}
		if err := appender.AppendRow(fields[0], pos, fields[2], fields[3], float32(score), fields[len(fields)-1]); err != nil {
			return n, fmt.Errorf("append alphamissense row: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading alphamissense tsv: %w", err)
	}
	if err := appender.Flush(); err != nil {
		return n, fmt.Errorf("flush alphamissense rows: %w", err)
	}
	return n, nil
}

// Lookup queries the AlphaMissense score for a variant. chrom must use the
// "chr" prefix as in the source files.
func (s *Store) Lookup(ctx context.Context, chrom string, pos int64, ref, alt string) (Result, bool, error) {
	var r Result
	err := s.lookupPS.QueryRowContext(ctx, chrom, pos, ref, alt).Scan(&r.Score, &r.Class)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("alphamissense lookup: %w", err)
	}
	return r, true, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.lookupPS.Close()
	return s.db.Close()
}

// Backend exposes a Store as a fused missense backend returning standalone
// AlphaMissense scores.
type Backend struct {
	store *Store
}

// NewBackend wraps store.
func NewBackend(store *Store) *Backend {
	return &Backend{store: store}
}

// Name identifies the backend in provenance.
func (b *Backend) Name() string { return "alphamissense_local" }

// Score looks up one variant encoding. Any chromosome naming is accepted.
func (b *Backend) Score(ctx context.Context, enc variant.Encoding) (backend.FusionScores, error) {
	chrom := "chr" + variant.NormalizeChrom(enc.Chrom)
	if chrom == "chrMT" {
		chrom = "chrM"
	}
	r, ok, err := b.store.Lookup(ctx, chrom, enc.Pos, enc.Ref, enc.Alt)
	if err != nil {
		return backend.FusionScores{}, err
	}
	if !ok {
		return backend.FusionScores{}, fmt.Errorf("alphamissense %s: %w", enc, backend.ErrNotApplicable)
	}
	score := r.Score
	return backend.FusionScores{AMScore: &score}, nil
}
