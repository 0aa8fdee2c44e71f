package scorer

import (
	"context"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/score"
)

// DefaultAmbiguityMargin is the distance from an impact threshold within
// which a foundation-model score is considered provisional.
const DefaultAmbiguityMargin = 0.02

// Reason recorded when no path produced a result.
const reasonNoPath = "no scoring path produced a result"

// StrategyOptions configures the fallback orchestrator.
type StrategyOptions struct {
	ForcePath       string // restrict the chain to this path name
	DisableFusion   bool
	AmbiguityMargin float64
	Reference       *score.Reference // calibration reference; nil leaves scores uncalibrated
}

// Strategy runs scoring paths in priority order and assembles the result.
type Strategy struct {
	paths []Path
	opts  StrategyOptions
}

// NewStrategy creates an orchestrator over paths, tried in the given order.
func NewStrategy(paths []Path, opts StrategyOptions) *Strategy {
	if opts.AmbiguityMargin < 0 {
		opts.AmbiguityMargin = 0
	}
	return &Strategy{paths: paths, opts: opts}
}

// enabled reports whether the path named name may run at all.
func (s *Strategy) enabled(name string) bool {
	if s.opts.ForcePath != "" && name != s.opts.ForcePath {
		return false
	}
	if name == PathFusion && s.opts.DisableFusion {
		return false
	}
	return true
}

func (s *Strategy) oracleEnabled() bool {
	for _, p := range s.paths {
		if p.Name() == PathOracle {
			return s.enabled(PathOracle)
		}
	}
	return false
}

// provisional reports whether res should be refined by the oracle.
func (s *Strategy) provisional(job *Job, res *PathResult) (string, bool) {
	if !s.oracleEnabled() {
		return "", false
	}
	if job.Request.MaxFidelity {
		return "provisional: max fidelity requested", true
	}
	if res.Mode == score.ModeFoundationModel && score.Ambiguous(res.Disruption, s.opts.AmbiguityMargin) {
		return "provisional: score near impact threshold", true
	}
	return "", false
}

// Run executes the fallback chain for job. It never fails: total failure
// yields a placeholder result and caller cancellation an error result.
func (s *Strategy) Run(ctx context.Context, job *Job) *score.SeqScore {
	log := job.logger()
	trail := score.NewStrategy()

	var (
		held     *PathResult
		heldPath string
	)
	for _, p := range s.paths {
		name := p.Name()
		if !s.enabled(name) {
			if name == PathFusion && s.opts.DisableFusion {
				trail.Reason(name, "disabled")
			}
			continue
		}
		if held != nil && name != PathOracle {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.cancelled(job, trail, err)
		}

		res, applicable, err := p.TryScore(ctx, job)
		if !applicable && err == nil {
			log.Debug("scoring path not applicable", zap.String("path", name))
			trail.Reason(name, "not_applicable")
			continue
		}
		trail.Attempt(name)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return s.cancelled(job, trail, cerr)
			}
			log.Info("scoring path failed", zap.String("path", name), zap.Error(err))
			trail.Reason(name, err.Error())
			continue
		}
		for k, v := range res.Notes {
			trail.Reason(k, v)
		}

		if name != PathOracle {
			if why, ok := s.provisional(job, res); ok {
				log.Debug("holding provisional result", zap.String("path", name), zap.String("reason", why))
				trail.Reason(name, why)
				held, heldPath = res, name
				continue
			}
		}

		if held != nil {
			trail.Reason(heldPath, "superseded by "+name)
		}
		trail.Succeeded = name
		return s.assemble(job, res, trail)
	}

	if held != nil {
		trail.Succeeded = heldPath
		return s.assemble(job, held, trail)
	}
	if err := ctx.Err(); err != nil {
		return s.cancelled(job, trail, err)
	}
	if len(trail.Reasons) == 0 {
		trail.Reason(string(score.ModePlaceholder), reasonNoPath)
	}
	log.Warn("all scoring paths failed, returning placeholder",
		zap.Strings("attempted", trail.Attempted))
	return score.Degraded(job.Request.Variant, score.ModePlaceholder, trail)
}

func (s *Strategy) cancelled(job *Job, trail score.Strategy, err error) *score.SeqScore {
	trail.Reason(string(score.ModeError), err.Error())
	job.logger().Info("scoring cancelled", zap.Error(err))
	return score.Degraded(job.Request.Variant, score.ModeError, trail)
}

// assemble builds the final SeqScore from a path result.
func (s *Strategy) assemble(job *Job, res *PathResult, trail score.Strategy) *score.SeqScore {
	disruption := score.Clamp01(res.Disruption)
	pct, calibration := score.PercentileLike(disruption, s.opts.Reference)
	probes := res.Probes
	if probes == nil {
		probes = []score.WindowProbeResult{}
	}
	return &score.SeqScore{
		Variant:                 job.Request.Variant,
		SequenceDisruption:      disruption,
		MinDelta:                res.MinDelta,
		ExonDelta:               res.ExonDelta,
		CalibratedSeqPercentile: score.Float(pct),
		Calibration:             calibration,
		ImpactLevel:             score.ClassifyImpactLevel(disruption),
		ScoringMode:             res.Mode,
		BestModel:               res.BestModel,
		BestWindowBp:            res.BestWindowBp,
		ScoringStrategy:         trail,
		ForwardReverseMeta:      res.Meta,
		WindowProbes:            probes,
	}
}
