package scorer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

var errDown = &backend.UnavailableError{Backend: "fake", Op: "/score", Err: errors.New("connection refused")}

// fakeWindows serves fixed forward/reverse deltas per (model, window).
type fakeWindows struct {
	fwd   map[int]float64    // window -> min_delta for any model
	rev   map[int]float64    // window -> reverse min_delta; missing mirrors fwd
	model map[string]float64 // optional per-model multiplier
	asm   map[string]float64 // optional per-assembly min_delta, overrides fwd
	fail  map[int]error      // window -> error
	gate  chan struct{}      // if set, calls block until closed or ctx done
	calls atomic.Int32
	mu    sync.Mutex
	seen  []backend.WindowRequest
}

func (f *fakeWindows) ScoreVariant(ctx context.Context, req backend.WindowRequest) (backend.WindowScores, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return backend.WindowScores{}, ctx.Err()
		}
	}
	if err := f.fail[req.WindowBp]; err != nil {
		return backend.WindowScores{}, err
	}
	d, ok := f.fwd[req.WindowBp]
	if !ok {
		return backend.WindowScores{}, errDown
	}
	if a, ok := f.asm[req.Assembly]; ok {
		d = a
	}
	if req.Strand == backend.StrandReverse {
		if r, ok := f.rev[req.WindowBp]; ok {
			d = r
		}
	}
	if m, ok := f.model[req.ModelID]; ok {
		d *= m
	}
	return backend.WindowScores{MinDelta: d, ExonDelta: d / 2}, nil
}

// fakeFusion accepts only encodings whose chromosome is in accept.
type fakeFusion struct {
	name   string
	accept map[string]bool
	score  float64
	err    error
	calls  atomic.Int32
}

func (f *fakeFusion) Name() string { return f.name }

func (f *fakeFusion) Score(ctx context.Context, enc variant.Encoding) (backend.FusionScores, error) {
	f.calls.Add(1)
	if f.err != nil {
		return backend.FusionScores{}, f.err
	}
	if !f.accept[enc.Chrom] {
		return backend.FusionScores{}, backend.ErrRejected
	}
	s := f.score
	return backend.FusionScores{FusedScore: &s}, nil
}

// fakeDelta returns delta for any sequence pair and remembers the last pair.
type fakeDelta struct {
	delta     float64
	err       error
	calls     atomic.Int32
	lastRef   string
	lastAlt   string
	lastModel string
}

func (f *fakeDelta) ScoreDelta(ctx context.Context, refSeq, altSeq, model string) (float64, error) {
	f.calls.Add(1)
	f.lastRef, f.lastAlt, f.lastModel = refSeq, altSeq, model
	if f.err != nil {
		return 0, f.err
	}
	return f.delta, nil
}

// fakeFetcher returns a poly-A region with base at pos.
type fakeFetcher struct {
	base  byte
	pos   int64
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchRegion(ctx context.Context, assembly, chrom string, start, end int64) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	seq := make([]byte, end-start+1)
	for i := range seq {
		seq[i] = 'A'
	}
	if f.pos >= start && f.pos <= end {
		seq[f.pos-start] = f.base
	}
	return string(seq), nil
}

// fakePath returns a canned outcome.
type fakePath struct {
	name       string
	res        *PathResult
	applicable bool
	err        error
	calls      atomic.Int32
}

func (f *fakePath) Name() string { return f.name }

func (f *fakePath) TryScore(ctx context.Context, job *Job) (*PathResult, bool, error) {
	f.calls.Add(1)
	return f.res, f.applicable, f.err
}

func okPath(name string, mode score.Mode, disruption float64) *fakePath {
	return &fakePath{
		name:       name,
		res:        &PathResult{Mode: mode, Disruption: disruption, MinDelta: score.Float(-disruption)},
		applicable: true,
	}
}

func failPath(name string) *fakePath {
	return &fakePath{name: name, applicable: true, err: errDown}
}

func braf() variant.Variant {
	return variant.Variant{Chrom: "7", Pos: 140453136, Ref: "T", Alt: "A", Assembly: variant.GRCh38}
}

func testJob(v variant.Variant, models []string, flanks []int) *Job {
	return &Job{
		Request: score.Request{Variant: v},
		Models:  models,
		Flanks:  flanks,
	}
}
