package score

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/marcboeker/go-duckdb"
	"gonum.org/v1/gonum/stat"
)

// Reference is a population sample of sequence_disruption values used to
// calibrate raw scores into percentiles.
type Reference struct {
	sorted []float64
}

// NewReference builds a Reference from samples (copied and sorted).
func NewReference(samples []float64) *Reference {
	s := make([]float64, len(samples))
	copy(s, samples)
	sort.Float64s(s)
	return &Reference{sorted: s}
}

// Len returns the number of samples.
func (r *Reference) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sorted)
}

// PercentileLike maps raw onto its empirical percentile within ref: the
// fraction of reference samples less than or equal to raw. With no
// reference the raw score passes through unchanged and the calibration is
// reported as uncalibrated.
func PercentileLike(raw float64, ref *Reference) (float64, string) {
	if ref.Len() == 0 {
		return Clamp01(raw), CalibrationUncalibrated
	}
	return stat.CDF(raw, stat.Empirical, ref.sorted, nil), CalibrationEmpirical
}

// LoadReference reads a single-column CSV (or headerless text file) of raw
// scores into a Reference. Non-numeric rows are ignored.
func LoadReference(path string) (*Reference, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(`SELECT TRY_CAST(column0 AS DOUBLE) AS v
		FROM read_csv('%s', header=false, delim=',', columns={'column0': 'VARCHAR'})
		WHERE TRY_CAST(column0 AS DOUBLE) IS NOT NULL`, path)

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("read reference distribution: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference rows: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("reference distribution %s: no numeric values", path)
	}
	return NewReference(samples), nil
}
