package scorer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Oracle context sizes.
const (
	SyntheticContextBp = 50000
	RealContextBp      = 25000
)

// OracleMode selects how the oracle builds sequence context.
type OracleMode string

// Oracle modes. Auto tries real context first and falls back to synthetic.
const (
	OracleRealContext OracleMode = "real_context"
	OracleSynthetic   OracleMode = "synthetic"
	OracleAuto        OracleMode = "auto"
)

// ParseOracleMode validates a configured oracle mode. Empty selects real
// context.
func ParseOracleMode(s string) (OracleMode, error) {
	switch m := OracleMode(strings.ToLower(s)); m {
	case "":
		return OracleRealContext, nil
	case OracleRealContext, OracleSynthetic, OracleAuto:
		return m, nil
	}
	return "", fmt.Errorf("unknown oracle mode %q (want real_context, synthetic or auto)", s)
}

// DeltaScorer scores a reference/alternate sequence pair.
type DeltaScorer interface {
	ScoreDelta(ctx context.Context, refSeq, altSeq, model string) (float64, error)
}

// RegionFetcher retrieves reference genome sequence.
type RegionFetcher interface {
	FetchRegion(ctx context.Context, assembly, chrom string, start, end int64) (string, error)
}

// OraclePath scores the variant inside an explicit sequence context, either
// a deterministic synthetic background or the real genomic flanks.
type OraclePath struct {
	scorer     DeltaScorer
	fetcher    RegionFetcher
	mode       OracleMode
	model      string
	deltaScale float64
}

// NewOraclePath creates the oracle. fetcher may be nil, in which case only
// synthetic context is available.
func NewOraclePath(scorer DeltaScorer, fetcher RegionFetcher, mode OracleMode, model string, deltaScale float64) *OraclePath {
	if deltaScale <= 0 {
		deltaScale = 1
	}
	return &OraclePath{scorer: scorer, fetcher: fetcher, mode: mode, model: model, deltaScale: deltaScale}
}

// Name implements Path.
func (p *OraclePath) Name() string { return PathOracle }

// TryScore implements Path.
func (p *OraclePath) TryScore(ctx context.Context, job *Job) (*PathResult, bool, error) {
	if p.scorer == nil {
		return nil, false, nil
	}
	model := p.model
	if model == "" && len(job.Models) > 0 {
		model = job.Models[0]
	}

	switch p.mode {
	case OracleSynthetic:
		return p.scoreMode(ctx, job, score.ModeOracleSynthetic, model)
	case OracleAuto:
		if p.fetcher == nil {
			return p.scoreMode(ctx, job, score.ModeOracleSynthetic, model)
		}
		res, _, err := p.scoreMode(ctx, job, score.ModeOracleRealContext, model)
		if err == nil {
			return res, true, nil
		}
		if ctx.Err() != nil || errors.Is(err, backend.ErrBudgetExhausted) {
			return nil, true, err
		}
		job.logger().Info("real-context oracle failed, using synthetic context", zap.Error(err))
		res, _, serr := p.scoreMode(ctx, job, score.ModeOracleSynthetic, model)
		if serr != nil {
			return nil, true, fmt.Errorf("real context: %v; synthetic: %w", err, serr)
		}
		res.Notes = map[string]string{string(score.ModeOracleRealContext): err.Error()}
		return res, true, nil
	default:
		if p.fetcher == nil {
			return nil, false, nil
		}
		return p.scoreMode(ctx, job, score.ModeOracleRealContext, model)
	}
}

func (p *OraclePath) scoreMode(ctx context.Context, job *Job, mode score.Mode, model string) (*PathResult, bool, error) {
	v := job.Request.Variant
	bp := SyntheticContextBp
	if mode == score.ModeOracleRealContext {
		bp = RealContextBp
	}
	delta, err := cached(ctx, job.Cache, score.OracleKey(mode, model, v, bp), func(ctx context.Context) (float64, error) {
		var (
			ref, alt string
			err      error
		)
		if mode == score.ModeOracleRealContext {
			ref, alt, err = p.realContext(ctx, job, v)
		} else {
			ref, alt = SyntheticContext(v, SyntheticContextBp)
		}
		if err != nil {
			return 0, err
		}
		if err := job.Budget.Take(); err != nil {
			return 0, err
		}
		return p.scorer.ScoreDelta(ctx, ref, alt, model)
	})
	if err != nil {
		return nil, true, err
	}
	return &PathResult{
		Mode:         mode,
		Disruption:   score.Disruption(delta, p.deltaScale),
		MinDelta:     score.Float(delta),
		BestModel:    score.String(model),
		BestWindowBp: score.Int(bp),
		Probes:       []score.WindowProbeResult{},
	}, true, nil
}

// realContext fetches RealContextBp of reference centred on the variant and
// returns the reference and alternate sequences. The fetched reference must
// agree with the variant's ref allele.
func (p *OraclePath) realContext(ctx context.Context, job *Job, v variant.Variant) (string, string, error) {
	half := int64(RealContextBp / 2)
	start := v.Pos - half
	if start < 1 {
		start = 1
	}
	end := v.Pos + int64(len(v.Ref)) - 1 + half

	if err := job.Budget.Take(); err != nil {
		return "", "", err
	}
	seq, err := p.fetcher.FetchRegion(ctx, v.Assembly, v.Chrom, start, end)
	if err != nil {
		return "", "", err
	}
	off := int(v.Pos - start)
	if off+len(v.Ref) > len(seq) {
		return "", "", fmt.Errorf("region for %s too short: %d bases", v.Key(), len(seq))
	}
	if got := seq[off : off+len(v.Ref)]; got != v.Ref {
		return "", "", fmt.Errorf("reference mismatch at %s: genome has %q: %w", v.Key(), got, backend.ErrRejected)
	}
	return seq, seq[:off] + v.Alt + seq[off+len(v.Ref):], nil
}

// SyntheticContext builds a deterministic background sequence of length bp
// with the variant's ref allele at the centre, and the same sequence
// carrying the alt allele. The background depends only on the variant
// identity.
func SyntheticContext(v variant.Variant, bp int) (string, string) {
	h := fnv.New64a()
	h.Write([]byte(v.Assembly + ":" + v.Key()))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	const bases = "ACGT"
	bg := make([]byte, bp)
	for i := range bg {
		bg[i] = bases[rng.IntN(len(bases))]
	}
	centre := (bp - len(v.Ref)) / 2
	if centre < 0 {
		centre = 0
	}
	prefix, suffix := string(bg[:centre]), ""
	if tail := centre + len(v.Ref); tail < bp {
		suffix = string(bg[tail:])
	}
	return prefix + v.Ref + suffix, prefix + v.Alt + suffix
}
