// Package output provides SeqScore output formatters.
package output

import (
	"bufio"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/inodb/vibe-seqscore/internal/score"
)

// Writer writes scored variants. Implementations buffer; call Flush when
// done.
type Writer interface {
	WriteHeader() error
	Write(id string, s *score.SeqScore) error
	Flush() error
}

// TabWriter writes scores in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Uploaded_variation",
			"Location",
			"Allele",
			"Assembly",
			"Sequence_disruption",
			"IMPACT",
			"Scoring_mode",
			"Percentile",
			"Calibration",
			"Min_delta",
			"Exon_delta",
			"Best_model",
			"Best_window_bp",
			"High_asymmetry",
			"Attempted",
			"Reasons",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single score. An empty id is written as "-".
func (tw *TabWriter) Write(id string, s *score.SeqScore) error {
	v := s.Variant

	asym := "-"
	if s.ForwardReverseMeta != nil {
		asym = "NO"
		if s.ForwardReverseMeta.HighAsymmetry {
			asym = "YES"
		}
	}

	values := []string{
		dash(id),
		v.Chrom + ":" + strconv.FormatInt(v.Pos, 10),
		v.Ref + ">" + v.Alt,
		v.Assembly,
		formatFloat(s.SequenceDisruption),
		string(s.ImpactLevel),
		string(s.ScoringMode),
		optFloat(s.CalibratedSeqPercentile),
		dash(s.Calibration),
		optFloat(s.MinDelta),
		optFloat(s.ExonDelta),
		optString(s.BestModel),
		optInt(s.BestWindowBp),
		asym,
		dash(strings.Join(s.ScoringStrategy.Attempted, ",")),
		formatReasons(s.ScoringStrategy.Reasons),
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// formatReasons renders reasons as key=value pairs sorted by key. Tabs and
// newlines in values are replaced to keep the row intact.
func formatReasons(reasons map[string]string) string {
	if len(reasons) == 0 {
		return "-"
	}
	clean := strings.NewReplacer("\t", " ", "\n", " ", ";", ",")
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(reasons)) {
		parts = append(parts, k+"="+clean.Replace(reasons[k]))
	}
	return strings.Join(parts, ";")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return formatFloat(*f)
}

func optInt(i *int) string {
	if i == nil {
		return "-"
	}
	return strconv.Itoa(*i)
}

func optString(s *string) string {
	if s == nil {
		return "-"
	}
	return dash(*s)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
