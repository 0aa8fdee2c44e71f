package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/cachestore"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Defaults used when Options leaves a field empty.
var (
	DefaultModel   = "evo2_1b"
	DefaultModels  = []string{"evo2_1b", "evo2_7b", "evo2_40b"}
	DefaultWindows = []int{4096, 8192, 16384, 25000}
)

// DefaultMaxBackendCalls caps backend calls per request in spam-safe mode.
const DefaultMaxBackendCalls = 8

// Options holds the request-shaping settings of a Service.
type Options struct {
	DefaultModel    string
	Models          []string // ensemble members
	ForceModel      string   // pin a single model and skip ensembling
	Windows         []int
	DeltaOnly       bool // forward strand only for every request
	SpamSafe        bool // cap backend calls per request; implies DeltaOnly
	MaxBackendCalls int
	ProfileTag      string // extra settings that change results, appended to cache keys
}

// Service is the ScoringService: it normalizes requests, de-duplicates and
// caches whole results, and runs the fallback strategy on a miss. It is
// safe for concurrent use.
type Service struct {
	cache    *cachestore.Cache
	strategy *Strategy
	opts     Options
	logger   *zap.Logger
}

// NewService creates a Service. cache may be nil to disable caching.
func NewService(cache *cachestore.Cache, strategy *Strategy, opts Options) *Service {
	if cache == nil {
		cache = cachestore.New(nil, 0)
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultModel
	}
	if len(opts.Models) == 0 {
		opts.Models = DefaultModels
	}
	if len(opts.Windows) == 0 {
		opts.Windows = DefaultWindows
	}
	if opts.SpamSafe && opts.MaxBackendCalls <= 0 {
		opts.MaxBackendCalls = DefaultMaxBackendCalls
	}
	return &Service{cache: cache, strategy: strategy, opts: opts, logger: zap.NewNop()}
}

// SetLogger sets the logger for scoring progress and degradation.
func (s *Service) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Cache returns the service's result cache.
func (s *Service) Cache() *cachestore.Cache {
	return s.cache
}

// ScoreRaw normalizes raw and scores it with the behavior described by req
// (whose Variant is ignored). Only an *variant.InvalidVariantError is
// returned as an error for malformed input.
func (s *Service) ScoreRaw(ctx context.Context, raw variant.Raw, req score.Request) (*score.SeqScore, error) {
	v, err := variant.Normalize(raw)
	if err != nil {
		return nil, err
	}
	req.Variant = v
	return s.Score(ctx, req)
}

// Score returns the SeqScore for req. Backend failures never surface as
// errors: they degrade the result's scoring_mode instead. Concurrent calls
// with an identical effective request share one computation.
func (s *Service) Score(ctx context.Context, req score.Request) (*score.SeqScore, error) {
	req, models, flanks := s.resolve(req)
	key := score.ResultKey(req, models, flanks, s.profile())
	log := s.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("variant", req.Variant.Key()))

	raw, hit, err := s.cache.Do(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		job := &Job{
			Request: req,
			Models:  models,
			Flanks:  flanks,
			Budget:  s.budget(),
			Cache:   s.cache,
			Logger:  log,
		}
		res := s.strategy.Run(backend.WithBudget(ctx, job.Budget), job)
		log.Debug("scored variant",
			zap.String("mode", string(res.ScoringMode)),
			zap.Float64("sequence_disruption", res.SequenceDisruption),
			zap.Int("backend_calls", job.Budget.Used()))
		b, err := json.Marshal(res)
		if err != nil {
			return nil, false, fmt.Errorf("encode seqscore: %w", err)
		}
		return b, res.Cacheable(), nil
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			trail := score.NewStrategy()
			trail.Reason(string(score.ModeError), cerr.Error())
			return score.Degraded(req.Variant, score.ModeError, trail), nil
		}
		return nil, fmt.Errorf("scoring %s: %w", req.Variant.Key(), err)
	}

	var out score.SeqScore
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode seqscore: %w", err)
	}
	if hit {
		log.Debug("seqscore served from cache", zap.String("key", key))
	}
	return &out, nil
}

// resolve applies service settings to req and returns the effective request,
// models and window sizes.
func (s *Service) resolve(req score.Request) (score.Request, []string, []int) {
	req = req.Normalized()
	if s.opts.DeltaOnly || s.opts.SpamSafe {
		req.DeltaOnly = true
	}

	var models []string
	switch {
	case s.opts.ForceModel != "":
		models = []string{s.opts.ForceModel}
		req.Ensemble = false
	case req.Ensemble:
		models = slices.Clone(s.opts.Models)
	case req.ModelID != "":
		models = []string{req.ModelID}
	default:
		models = []string{s.opts.DefaultModel}
	}
	req.ModelID = models[0]

	flanks := req.WindowFlanks
	if len(flanks) == 0 {
		flanks = slices.Clone(s.opts.Windows)
		slices.Sort(flanks)
		flanks = slices.Compact(flanks)
	}
	req.WindowFlanks = flanks
	return req, models, flanks
}

func (s *Service) budget() *backend.Budget {
	if !s.opts.SpamSafe {
		return nil
	}
	return backend.NewBudget(s.opts.MaxBackendCalls)
}

// profile identifies settings outside the request that change results.
func (s *Service) profile() string {
	var parts []string
	if o := s.strategy.opts; o.DisableFusion {
		parts = append(parts, "nofusion")
	}
	if p := s.strategy.opts.ForcePath; p != "" {
		parts = append(parts, "path="+p)
	}
	if s.opts.SpamSafe {
		parts = append(parts, fmt.Sprintf("spam=%d", s.opts.MaxBackendCalls))
	}
	if s.opts.ProfileTag != "" {
		parts = append(parts, s.opts.ProfileTag)
	}
	return strings.Join(parts, ",")
}
