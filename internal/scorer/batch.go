package scorer

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc"

	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// WorkItem holds a raw variant ready for scoring.
type WorkItem struct {
	Seq   int
	Raw   variant.Raw
	Extra any // caller-specific data (e.g. source line number)
}

// WorkResult holds the scoring output for a single variant.
type WorkResult struct {
	Seq   int
	Raw   variant.Raw
	Score *score.SeqScore
	Err   error
	Extra any
}

// ParallelScore scores work items using a pool of workers, applying req's
// scoring behavior to each variant. Results are sent to the returned
// channel in arrival order (not sequence order). Use OrderedCollect to
// consume results in sequence-number order. If workers is 0,
// runtime.NumCPU() is used.
func (s *Service) ParallelScore(ctx context.Context, items <-chan WorkItem, req score.Request, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg conc.WaitGroup
	for range workers {
		wg.Go(func() {
			for item := range items {
				sc, err := s.ScoreRaw(ctx, item.Raw, req)
				results <- WorkResult{
					Seq:   item.Seq,
					Raw:   item.Raw,
					Score: sc,
					Err:   err,
					Extra: item.Extra,
				}
			}
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
