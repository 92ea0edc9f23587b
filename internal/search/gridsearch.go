package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liqun1981/lee-wave-analysis/internal/metrics"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"golang.org/x/sync/errgroup"
)

// ErrNoValidCandidate is returned when every grid candidate received the
// sentinel cost.
var ErrNoValidCandidate = errors.New("no grid candidate could be evaluated")

const defaultChunkSize = 256

// gridJob is a contiguous run of candidates for one worker.
type gridJob struct {
	start  int
	params []Params
}

// gridChunkResult carries the costs of one job back to the collector.
type gridChunkResult struct {
	start      int
	costs      []float64
	degenerate int
	unphysical int
}

// Grid evaluates every candidate of cfg.Grid and returns the one with the
// lowest cost. Ties go to the lowest candidate index, so the result does not
// depend on scheduling. Candidates that cannot be evaluated receive
// SentinelCost and never abort the search.
func (e *Engine) Grid(ctx context.Context, obs *observation.Set, cfg GridConfig) (*Result, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if err := validateScale(cfg.BuoyancyScale); err != nil {
		return nil, err
	}
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = defaultChunkSize
	}

	size := cfg.Grid.Size()
	e.logger.Debug("grid search starting",
		"candidates", size,
		"samples", obs.Len(),
		"metric", cfg.Metric.String(),
		"polarization", cfg.Polarization.String(),
		"workers", e.workers,
	)

	start := time.Now()
	jobs := make(chan gridJob, e.workers*2)
	results := make(chan gridChunkResult, e.workers*2)

	g, gctx := errgroup.WithContext(ctx)

	// Feed lazily from the candidate sequence.
	g.Go(func() error {
		defer close(jobs)
		batch := gridJob{params: make([]Params, 0, chunkSize)}
		for i, p := range cfg.Grid.Candidates() {
			if len(batch.params) == 0 {
				batch.start = i
			}
			batch.params = append(batch.params, p)
			if len(batch.params) < chunkSize {
				continue
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = gridJob{params: make([]Params, 0, chunkSize)}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if len(batch.params) > 0 {
			select {
			case jobs <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < e.workers; w++ {
		g.Go(func() error {
			ev := NewEvaluator(obs, cfg.BuoyancyScale, cfg.Polarization)
			for job := range jobs {
				res := gridChunkResult{start: job.start, costs: make([]float64, len(job.params))}
				for i, p := range job.params {
					c, err := ev.Cost(p, cfg.Metric)
					switch {
					case errors.Is(err, ErrDegenerateCandidate):
						res.degenerate++
					case err != nil:
						res.unphysical++
					}
					res.costs[i] = c
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	// Close results when the feeder and all workers are done.
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	var table []Entry
	if cfg.KeepTable {
		table = make([]Entry, size)
	}
	bestIdx := -1
	bestCost := SentinelCost
	var evaluated, degenerate, unphysical int

	for res := range results {
		evaluated += len(res.costs)
		degenerate += res.degenerate
		unphysical += res.unphysical
		for i, c := range res.costs {
			idx := res.start + i
			if table != nil {
				table[idx] = Entry{Params: cfg.Grid.At(idx), Cost: c}
			}
			// Sentinel costs are never eligible, and the strict comparison
			// excludes NaN should one ever slip through.
			if c < bestCost || (c == bestCost && c < SentinelCost && idx < bestIdx) {
				bestIdx = idx
				bestCost = c
			}
		}
	}

	duration := time.Since(start)
	metrics.RecordCandidates(string(StrategyGrid), evaluated, degenerate, unphysical)

	if err := <-waitErr; err != nil {
		metrics.RecordSearch(string(StrategyGrid), "cancelled", duration)
		return nil, fmt.Errorf("grid search: %w", err)
	}
	if bestIdx < 0 {
		metrics.RecordSearch(string(StrategyGrid), "no_candidate", duration)
		return nil, fmt.Errorf("%w: %d candidates, %d degenerate, %d unphysical", ErrNoValidCandidate, size, degenerate, unphysical)
	}
	metrics.RecordSearch(string(StrategyGrid), "ok", duration)

	best := cfg.Grid.At(bestIdx)
	e.logger.Info("grid search complete",
		"candidates", evaluated,
		"degenerate", degenerate,
		"unphysical", unphysical,
		"best", best.String(),
		"cost", bestCost,
		"duration_ms", duration.Milliseconds(),
	)

	return &Result{
		Strategy:     StrategyGrid,
		Metric:       cfg.Metric.String(),
		Polarization: cfg.Polarization.String(),
		Best:         best,
		Cost:         bestCost,
		Evaluations:  evaluated,
		Sentinels:    degenerate + unphysical,
		Converged:    true,
		Duration:     duration,
		Table:        table,
	}, nil
}
