package scorer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// FusionBackend returns fused (or standalone) missense pathogenicity scores
// for one variant encoding.
type FusionBackend interface {
	Name() string
	Score(ctx context.Context, enc variant.Encoding) (backend.FusionScores, error)
}

// FusionPath scores GRCh38 missense SNVs with the first fused missense
// backend that accepts them.
type FusionPath struct {
	backends []FusionBackend
}

// NewFusionPath creates the path over backends, queried in order.
func NewFusionPath(backends ...FusionBackend) *FusionPath {
	return &FusionPath{backends: backends}
}

// Name implements Path.
func (p *FusionPath) Name() string { return PathFusion }

// TryScore implements Path.
func (p *FusionPath) TryScore(ctx context.Context, job *Job) (*PathResult, bool, error) {
	v := job.Request.Variant
	if len(p.backends) == 0 || !fusionApplicable(v) {
		return nil, false, nil
	}

	scores, err := cached(ctx, job.Cache, score.FusionKey(v), func(ctx context.Context) (backend.FusionScores, error) {
		return p.query(ctx, job)
	})
	if errors.Is(err, backend.ErrNotApplicable) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}

	s, src, ok := scores.Best()
	if !ok {
		return nil, false, nil
	}
	d := score.Clamp01(s)
	return &PathResult{
		Mode:       score.ModeFusion,
		Disruption: d,
		BestModel:  score.String(src),
		Probes:     []score.WindowProbeResult{},
	}, true, nil
}

// query tries each backend with each encoding. A rejected or uncovered
// encoding moves on to the next one; an unavailable backend moves on to the
// next backend.
func (p *FusionPath) query(ctx context.Context, job *Job) (backend.FusionScores, error) {
	log := job.logger()
	var failure error
	for _, b := range p.backends {
	encodings:
		for _, enc := range job.Request.Variant.Encodings() {
			if err := job.Budget.Take(); err != nil {
				return backend.FusionScores{}, err
			}
			scores, err := b.Score(ctx, enc)
			switch {
			case err == nil:
				log.Debug("fusion backend scored variant",
					zap.String("backend", b.Name()),
					zap.Stringer("encoding", enc))
				return scores, nil
			case ctx.Err() != nil:
				return backend.FusionScores{}, ctx.Err()
			case errors.Is(err, backend.ErrRejected), errors.Is(err, backend.ErrNotApplicable):
				log.Debug("fusion encoding not accepted",
					zap.String("backend", b.Name()),
					zap.Stringer("encoding", enc),
					zap.Error(err))
			default:
				failure = fmt.Errorf("%s: %w", b.Name(), err)
				log.Info("fusion backend failed", zap.String("backend", b.Name()), zap.Error(err))
				break encodings
			}
		}
	}
	if failure != nil {
		return backend.FusionScores{}, failure
	}
	return backend.FusionScores{}, fmt.Errorf("no fusion backend covers %s: %w", job.Request.Variant.Key(), backend.ErrNotApplicable)
}

// fusionApplicable reports whether v meets the GRCh38 missense SNV
// precondition. An unknown consequence is assumed to be missense.
func fusionApplicable(v variant.Variant) bool {
	return v.Assembly == variant.GRCh38 && v.IsSNV() && isMissense(v.Consequence)
}

func isMissense(consequence string) bool {
	if consequence == "" {
		return true
	}
	for _, term := range strings.FieldsFunc(strings.ToLower(consequence), func(r rune) bool {
		return r == ',' || r == '&' || r == ';' || r == '|'
	}) {
		if strings.TrimSpace(term) == "missense_variant" {
			return true
		}
	}
	return false
}
