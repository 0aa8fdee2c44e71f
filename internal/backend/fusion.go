package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// FusionScores is the fused missense service response. Either score may be
// absent.
type FusionScores struct {
	FusedScore *float64 `json:"fused_score"`
	AMScore    *float64 `json:"am_score"`
}

// Best returns the preferred score (fused over standalone) and its source.
func (s FusionScores) Best() (float64, string, bool) {
	if s.FusedScore != nil {
		return *s.FusedScore, "fused_score", true
	}
	if s.AMScore != nil {
		return *s.AMScore, "am_score", true
	}
	return 0, "", false
}

// FusionClient calls the fused missense-effect service.
type FusionClient struct {
	rest restClient
}

// NewFusionClient creates a client for the service at baseURL.
func NewFusionClient(baseURL string, timeout time.Duration) *FusionClient {
	return &FusionClient{rest: newRESTClient("fusion", baseURL, timeout)}
}

// SetLogger sets the logger for retry diagnostics.
func (c *FusionClient) SetLogger(l *zap.Logger) {
	c.rest.logger = l
}

// Name identifies the backend in provenance.
func (c *FusionClient) Name() string { return "fusion_service" }

type fusionRequest struct {
	Chrom string `json:"chrom"`
	Pos   int64  `json:"pos"`
	Ref   string `json:"ref"`
	Alt   string `json:"alt"`
}

// Score posts one variant encoding to /score_variant.
func (c *FusionClient) Score(ctx context.Context, enc variant.Encoding) (FusionScores, error) {
	var out FusionScores
	err := c.rest.postJSON(ctx, "/score_variant", fusionRequest{
		Chrom: enc.Chrom,
		Pos:   enc.Pos,
		Ref:   enc.Ref,
		Alt:   enc.Alt,
	}, &out)
	if err != nil {
		return FusionScores{}, err
	}
	if _, _, ok := out.Best(); !ok {
		return FusionScores{}, fmt.Errorf("fusion %s: no score in response: %w", enc, ErrNotApplicable)
	}
	return out, nil
}
