package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/inodb/vibe-seqscore/internal/score"
)

// JSONWriter writes one SeqScore JSON object per line.
type JSONWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONWriter creates a JSON Lines writer.
func NewJSONWriter(w io.Writer) *JSONWriter {
	bw := bufio.NewWriter(w)
	return &JSONWriter{w: bw, enc: json.NewEncoder(bw)}
}

// WriteHeader is a no-op; JSON Lines has no header.
func (jw *JSONWriter) WriteHeader() error { return nil }

type jsonRecord struct {
	ID string `json:"id,omitempty"`
	*score.SeqScore
}

// Write writes s as one line, tagged with id when non-empty.
func (jw *JSONWriter) Write(id string, s *score.SeqScore) error {
	if err := jw.enc.Encode(jsonRecord{ID: id, SeqScore: s}); err != nil {
		return fmt.Errorf("encode seqscore: %w", err)
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (jw *JSONWriter) Flush() error {
	return jw.w.Flush()
}

// NewWriter returns the writer for format ("tab" or "json").
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case "tab", "tsv":
		return NewTabWriter(w), nil
	case "json", "jsonl":
		return NewJSONWriter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
