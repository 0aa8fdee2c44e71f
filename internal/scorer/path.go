// Package scorer coordinates the scoring backends into a single
// sequence-disruption result: the fallback chain of scoring paths, the
// foundation-model window prober, and the ScoringService that fronts them
// with caching and request de-duplication.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/cachestore"
	"github.com/inodb/vibe-seqscore/internal/score"
)

// Path names, in fallback priority order.
const (
	PathFusion     = "fusion"
	PathFoundation = "foundation_model"
	PathOracle     = "oracle"
)

// Job carries the per-request state shared by all paths of one scoring run.
type Job struct {
	Request score.Request // normalized, with effective flags applied
	Models  []string      // effective model IDs, in order
	Flanks  []int         // effective window sizes, ascending
	Budget  *backend.Budget
	Cache   *cachestore.Cache
	Logger  *zap.Logger
}

// PathResult is a usable score produced by one path.
type PathResult struct {
	Mode         score.Mode
	Disruption   float64
	MinDelta     *float64
	ExonDelta    *float64
	BestModel    *string
	BestWindowBp *int
	Meta         *score.ForwardReverseMeta
	Probes       []score.WindowProbeResult
	Notes        map[string]string // extra provenance, merged into reasons
}

// Path is one step of the fallback chain.
//
// TryScore returns applicable=false with a nil error when the path's
// precondition is unmet; the orchestrator skips it without counting a
// failure. A non-nil error means the path was attempted and failed.
type Path interface {
	Name() string
	TryScore(ctx context.Context, job *Job) (res *PathResult, applicable bool, err error)
}

// cached runs fn through the engine cache under key, storing the JSON
// encoding of its result. A nil cache calls fn directly.
func cached[T any](ctx context.Context, c *cachestore.Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fn(ctx)
	}
	raw, _, err := c.Do(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, false, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("encode %s: %w", key, err)
		}
		return b, true, nil
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func (j *Job) logger() *zap.Logger {
	if j.Logger == nil {
		return zap.NewNop()
	}
	return j.Logger
}
