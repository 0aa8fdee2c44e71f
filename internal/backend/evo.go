package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Strand directions for foundation-model window probes.
const (
	StrandForward = "forward"
	StrandReverse = "reverse"
)

// WindowRequest asks the foundation-model service to score a variant with a
// given context window. Reverse-strand requests carry reverse-complemented
// alleles.
type WindowRequest struct {
	Chrom    string `json:"chrom"`
	Pos      int64  `json:"pos"`
	Ref      string `json:"ref"`
	Alt      string `json:"alt"`
	Assembly string `json:"assembly"`
	ModelID  string `json:"model_id"`
	WindowBp int    `json:"window_bp"`
	Strand   string `json:"strand"`
}

// WindowScores is the foundation-model response for one window.
type WindowScores struct {
	MinDelta  float64 `json:"min_delta"`
	ExonDelta float64 `json:"exon_delta"`
}

// EvoClient calls the foundation-model scoring service.
type EvoClient struct {
	rest restClient
}

// NewEvoClient creates a client for the service at baseURL.
func NewEvoClient(baseURL string, timeout time.Duration) *EvoClient {
	return &EvoClient{rest: newRESTClient("evo2", baseURL, timeout)}
}

// SetLogger sets the logger for retry diagnostics.
func (c *EvoClient) SetLogger(l *zap.Logger) {
	c.rest.logger = l
}

// ScoreVariant posts to /score_variant_multi.
func (c *EvoClient) ScoreVariant(ctx context.Context, req WindowRequest) (WindowScores, error) {
	var out struct {
		MinDelta  *float64 `json:"min_delta"`
		ExonDelta *float64 `json:"exon_delta"`
	}
	if err := c.rest.postJSON(ctx, "/score_variant_multi", req, &out); err != nil {
		return WindowScores{}, err
	}
	if out.MinDelta == nil {
		return WindowScores{}, fmt.Errorf("evo2 window %d: response missing min_delta", req.WindowBp)
	}
	ws := WindowScores{MinDelta: *out.MinDelta}
	if out.ExonDelta != nil {
		ws.ExonDelta = *out.ExonDelta
	}
	return ws, nil
}

type deltaRequest struct {
	RefSequence string `json:"ref_sequence"`
	AltSequence string `json:"alt_sequence"`
	ModelID     string `json:"model_id"`
}

// ScoreDelta posts a reference/alternate sequence pair to /score_delta and
// returns the likelihood delta (alt minus ref).
func (c *EvoClient) ScoreDelta(ctx context.Context, refSeq, altSeq, model string) (float64, error) {
	var out struct {
		Delta *float64 `json:"delta"`
	}
	if err := c.rest.postJSON(ctx, "/score_delta", deltaRequest{
		RefSequence: refSeq,
		AltSequence: altSeq,
		ModelID:     model,
	}, &out); err != nil {
		return 0, err
	}
	if out.Delta == nil {
		return 0, fmt.Errorf("evo2 score_delta: response missing delta")
	}
	return *out.Delta, nil
}
