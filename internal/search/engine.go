// Package search recovers wave parameters from float observations by
// comparing them with the plane-wave model, either over a grid of candidates
// or with a Levenberg–Marquardt least-squares fit.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/liqun1981/lee-wave-analysis/internal/observation"
)

// Engine runs searches. It holds no per-search state and is safe for
// concurrent use.
type Engine struct {
	workers int
	logger  *slog.Logger
}

// NewEngine creates an engine that evaluates grid candidates on the given
// number of goroutines (runtime.NumCPU() when workers < 1).
func NewEngine(workers int, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		workers: workers,
		logger:  logger.With("component", "search"),
	}
}

// Workers returns the grid worker count.
func (e *Engine) Workers() int {
	return e.workers
}

// Run validates cfg and dispatches to the configured strategy.
func (e *Engine) Run(ctx context.Context, obs *observation.Set, cfg Config) (*Result, error) {
	switch cfg.Strategy {
	case StrategyGrid:
		gc, err := cfg.GridConfig()
		if err != nil {
			return nil, err
		}
		return e.Grid(ctx, obs, gc)
	case StrategyLeastSquares:
		lc, err := cfg.LSQConfig()
		if err != nil {
			return nil, err
		}
		return e.LeastSquares(ctx, obs, lc)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
}
