package scorer

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// DefaultAsymmetryThreshold is the forward/reverse disagreement ratio above
// which a window is flagged as highly asymmetric.
const DefaultAsymmetryThreshold = 0.5

// WindowScorer scores a variant within one context window on one strand.
type WindowScorer interface {
	ScoreVariant(ctx context.Context, req backend.WindowRequest) (backend.WindowScores, error)
}

// FoundationPath probes every (model, window) pair against the
// foundation-model service, averages the strand passes, picks the most
// disruptive window per model and aggregates across models.
type FoundationPath struct {
	client             WindowScorer
	asymmetryThreshold float64
	deltaScale         float64
	maxParallel        int
}

// FoundationOptions tunes a FoundationPath. Zero values select defaults.
type FoundationOptions struct {
	AsymmetryThreshold float64
	DeltaScale         float64
	MaxParallel        int
}

// NewFoundationPath creates the path over client.
func NewFoundationPath(client WindowScorer, opts FoundationOptions) *FoundationPath {
	if opts.AsymmetryThreshold <= 0 {
		opts.AsymmetryThreshold = DefaultAsymmetryThreshold
	}
	if opts.DeltaScale <= 0 {
		opts.DeltaScale = 1
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	return &FoundationPath{
		client:             client,
		asymmetryThreshold: opts.AsymmetryThreshold,
		deltaScale:         opts.DeltaScale,
		maxParallel:        opts.MaxParallel,
	}
}

// Name implements Path.
func (p *FoundationPath) Name() string { return PathFoundation }

type probeOutcome struct {
	model  string
	window int
	probe  score.WindowProbeResult
	err    error
}

// TryScore implements Path.
func (p *FoundationPath) TryScore(ctx context.Context, job *Job) (*PathResult, bool, error) {
	if p.client == nil || len(job.Models) == 0 || len(job.Flanks) == 0 {
		return nil, false, nil
	}
	log := job.logger()
	forwardOnly := job.Request.DeltaOnly

	workers := pool.NewWithResults[probeOutcome]().WithMaxGoroutines(p.maxParallel)
	for _, model := range job.Models {
		for _, window := range job.Flanks {
			workers.Go(func() probeOutcome {
				pr, err := p.probe(ctx, job, model, window, forwardOnly)
				return probeOutcome{model: model, window: window, probe: pr, err: err}
			})
		}
	}
	outcomes := workers.Wait()

	byModel := make(map[string][]score.WindowProbeResult, len(job.Models))
	var firstErr error
	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.err
			}
			log.Info("window probe failed",
				zap.String("model", o.model),
				zap.Int("window_bp", o.window),
				zap.Error(o.err))
			continue
		}
		byModel[o.model] = append(byModel[o.model], o.probe)
	}
	if len(byModel) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, true, err
		}
		return nil, true, fmt.Errorf("all %d window probes failed: %w", failed, firstErr)
	}

	var (
		probes []score.WindowProbeResult
		best   []score.WindowProbeResult // best window per model, in model order
	)
	for _, model := range job.Models {
		mp := byModel[model]
		if len(mp) == 0 {
			continue
		}
		slices.SortFunc(mp, func(a, b score.WindowProbeResult) int { return a.WindowBp - b.WindowBp })
		probes = append(probes, mp...)
		best = append(best, SelectWindow(mp))
	}

	agg := Ensemble(best)
	res := &PathResult{
		Mode:         score.ModeFoundationModel,
		Disruption:   score.Disruption(agg.MinDelta, p.deltaScale),
		MinDelta:     score.Float(agg.MinDelta),
		ExonDelta:    score.Float(agg.ExonDelta),
		BestModel:    score.String(agg.Model),
		BestWindowBp: score.Int(agg.WindowBp),
		Meta:         agg.Meta,
		Probes:       probes,
	}
	if failed > 0 {
		res.Notes = map[string]string{
			PathFoundation + "_probes": fmt.Sprintf("%d of %d window probes failed: %v", failed, len(outcomes), firstErr),
		}
	}
	return res, true, nil
}

// probe scores one window, averaging the forward and reverse-complement
// passes unless forwardOnly is set. A failed reverse pass degrades the
// window to its forward result.
func (p *FoundationPath) probe(ctx context.Context, job *Job, model string, window int, forwardOnly bool) (score.WindowProbeResult, error) {
	fwd, err := p.pass(ctx, job, model, window, backend.StrandForward)
	if err != nil {
		return score.WindowProbeResult{}, err
	}
	pr := score.WindowProbeResult{
		Model:     model,
		WindowBp:  window,
		RawDelta:  fwd.MinDelta,
		ExonDelta: fwd.ExonDelta,
		MinDelta:  fwd.MinDelta,
	}
	if forwardOnly {
		return pr, nil
	}

	rev, err := p.pass(ctx, job, model, window, backend.StrandReverse)
	if err != nil {
		job.logger().Info("reverse pass failed, using forward only",
			zap.String("model", model),
			zap.Int("window_bp", window),
			zap.Error(err))
		return pr, nil
	}

	meta := Symmetrize(fwd.MinDelta, rev.MinDelta, p.asymmetryThreshold)
	pr.MinDelta = math.Copysign(meta.SymmetryDelta, fwd.MinDelta)
	pr.ExonDelta = math.Copysign((math.Abs(fwd.ExonDelta)+math.Abs(rev.ExonDelta))/2, fwd.ExonDelta)
	pr.Meta = &meta
	return pr, nil
}

// pass runs one strand of one window through the engine cache.
func (p *FoundationPath) pass(ctx context.Context, job *Job, model string, window int, strand string) (backend.WindowScores, error) {
	v := job.Request.Variant
	reverse := strand == backend.StrandReverse
	key := score.EvoKey(model, v, window, reverse)
	return cached(ctx, job.Cache, key, func(ctx context.Context) (backend.WindowScores, error) {
		if err := job.Budget.Take(); err != nil {
			return backend.WindowScores{}, err
		}
		req := backend.WindowRequest{
			Chrom:    v.Chrom,
			Pos:      v.Pos,
			Ref:      v.Ref,
			Alt:      v.Alt,
			Assembly: v.Assembly,
			ModelID:  model,
			WindowBp: window,
			Strand:   strand,
		}
		if reverse {
			req.Ref = variant.ReverseComplement(v.Ref)
			req.Alt = variant.ReverseComplement(v.Alt)
		}
		return p.client.ScoreVariant(ctx, req)
	})
}

// Symmetrize combines a forward and reverse-complement delta. The symmetry
// delta is the mean magnitude; the asymmetry ratio is their difference
// relative to it.
func Symmetrize(fwd, rev, threshold float64) score.ForwardReverseMeta {
	sym := (math.Abs(fwd) + math.Abs(rev)) / 2
	ratio := math.Abs(fwd-rev) / math.Max(1e-6, sym)
	return score.ForwardReverseMeta{
		FwdDelta:       fwd,
		RevDelta:       rev,
		SymmetryDelta:  sym,
		AsymmetryRatio: ratio,
		HighAsymmetry:  ratio > threshold,
	}
}

// SelectWindow returns the probe with the largest |min_delta|. Ties keep the
// earliest probe. probes must be non-empty.
func SelectWindow(probes []score.WindowProbeResult) score.WindowProbeResult {
	best := probes[0]
	for _, pr := range probes[1:] {
		if math.Abs(pr.MinDelta) > math.Abs(best.MinDelta) {
			best = pr
		}
	}
	return best
}

// Ensemble aggregates the best window of each model. The aggregate delta is
// the mean magnitude across models, signed like the model with the single
// largest-magnitude delta, which is reported as the best model along with
// its window and strand metadata. best must be non-empty.
func Ensemble(best []score.WindowProbeResult) score.WindowProbeResult {
	top := SelectWindow(best)
	if len(best) == 1 {
		return top
	}
	mags := make([]float64, len(best))
	exons := make([]float64, len(best))
	for i, pr := range best {
		mags[i] = math.Abs(pr.MinDelta)
		exons[i] = math.Abs(pr.ExonDelta)
	}
	agg := top
	agg.MinDelta = math.Copysign(stat.Mean(mags, nil), top.MinDelta)
	agg.ExonDelta = math.Copysign(stat.Mean(exons, nil), top.ExonDelta)
	return agg
}
