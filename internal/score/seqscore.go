// Package score defines the unified sequence-disruption result, its
// provenance trail, and the deterministic mappings from raw model deltas to
// bounded scores, percentiles and impact levels.
package score

import (
	"slices"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Mode identifies which step of the fallback chain produced a score.
type Mode string

// Scoring modes.
const (
	ModeFusion            Mode = "fusion"
	ModeFoundationModel   Mode = "foundation_model"
	ModeOracleSynthetic   Mode = "oracle_synthetic"
	ModeOracleRealContext Mode = "oracle_real_context"
	ModePlaceholder       Mode = "placeholder"
	ModeError             Mode = "error"
)

// Calibration states reported alongside calibrated_seq_percentile.
const (
	CalibrationEmpirical    = "empirical"
	CalibrationUncalibrated = "uncalibrated"
)

// Request describes the caller's desired scoring behavior.
type Request struct {
	Variant      variant.Variant
	ModelID      string // empty selects the configured default
	WindowFlanks []int  // empty selects the configured default windows
	Ensemble     bool
	DeltaOnly    bool
	MaxFidelity  bool // treat fusion/foundation results as provisional and consult the oracle
}

// Normalized returns a copy with window flanks sorted and deduplicated.
// Non-positive flanks are dropped.
func (r Request) Normalized() Request {
	flanks := slices.DeleteFunc(slices.Clone(r.WindowFlanks), func(f int) bool { return f <= 0 })
	slices.Sort(flanks)
	r.WindowFlanks = slices.Compact(flanks)
	return r
}

// WindowProbeResult is the outcome of probing one context window.
type WindowProbeResult struct {
	Model     string              `json:"model"`
	WindowBp  int                 `json:"window_bp"`
	RawDelta  float64             `json:"raw_delta"`  // forward-strand min_delta as returned by the backend
	ExonDelta float64             `json:"exon_delta"` // strand-combined exon delta
	MinDelta  float64             `json:"min_delta"`  // strand-combined min delta, signed like the forward pass
	Meta      *ForwardReverseMeta `json:"forward_reverse_meta"`
}

// ForwardReverseMeta records the two strand passes for one window.
type ForwardReverseMeta struct {
	FwdDelta       float64 `json:"fwd_delta"`
	RevDelta       float64 `json:"rev_delta"`
	SymmetryDelta  float64 `json:"symmetry_delta"`
	AsymmetryRatio float64 `json:"asymmetry_ratio"`
	HighAsymmetry  bool    `json:"high_asymmetry"`
}

// Strategy is the provenance of a fallback chain run.
type Strategy struct {
	Attempted []string          `json:"attempted"`
	Succeeded string            `json:"succeeded"`
	Reasons   map[string]string `json:"reasons"`
}

// NewStrategy returns an empty provenance trail.
func NewStrategy() Strategy {
	return Strategy{Attempted: []string{}, Reasons: map[string]string{}}
}

// Attempt records that path was tried.
func (s *Strategy) Attempt(path string) {
	s.Attempted = append(s.Attempted, path)
}

// Reason records why path was skipped, failed or superseded.
func (s *Strategy) Reason(path, reason string) {
	s.Reasons[path] = reason
}

// SeqScore is the unified sequence-disruption result. Optional fields are
// serialized as explicit nulls, never omitted.
type SeqScore struct {
	Variant                 variant.Variant     `json:"variant"`
	SequenceDisruption      float64             `json:"sequence_disruption"`
	MinDelta                *float64            `json:"min_delta"`
	ExonDelta               *float64            `json:"exon_delta"`
	CalibratedSeqPercentile *float64            `json:"calibrated_seq_percentile"`
	Calibration             string              `json:"calibration"`
	ImpactLevel             ImpactLevel         `json:"impact_level"`
	ScoringMode             Mode                `json:"scoring_mode"`
	BestModel               *string             `json:"best_model"`
	BestWindowBp            *int                `json:"best_window_bp"`
	ScoringStrategy         Strategy            `json:"scoring_strategy"`
	ForwardReverseMeta      *ForwardReverseMeta `json:"forward_reverse_meta"`
	WindowProbes            []WindowProbeResult `json:"window_probes"`
}

// Degraded returns a zero-score result for mode (placeholder or error)
// carrying the provenance trail of the failed attempts.
func Degraded(v variant.Variant, mode Mode, strategy Strategy) *SeqScore {
	return &SeqScore{
		Variant:            v,
		SequenceDisruption: 0,
		Calibration:        CalibrationUncalibrated,
		ImpactLevel:        ImpactNone,
		ScoringMode:        mode,
		ScoringStrategy:    strategy,
		WindowProbes:       []WindowProbeResult{},
	}
}

// Cacheable returns true if the result came from a real backend and may be
// written to the cache.
func (s *SeqScore) Cacheable() bool {
	return s.ScoringMode != ModePlaceholder && s.ScoringMode != ModeError
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
