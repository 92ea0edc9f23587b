package search

import (
	"fmt"
	"time"
)

// Strategy names a search algorithm.
type Strategy string

const (
	StrategyGrid         Strategy = "grid"
	StrategyLeastSquares Strategy = "lsq"
)

// Entry is one evaluated grid candidate.
type Entry struct {
	Params Params  `json:"params" msgpack:"p"`
	Cost   float64 `json:"cost" msgpack:"c"`
}

// Result is the outcome of one search invocation. It is not modified after
// being returned.
type Result struct {
	Strategy     Strategy      `json:"strategy" msgpack:"strategy"`
	Metric       string        `json:"metric" msgpack:"metric"`
	Polarization string        `json:"polarization" msgpack:"polarization"`
	Best         Params        `json:"best" msgpack:"best"`
	Cost         float64       `json:"cost" msgpack:"cost"`
	Evaluations  int           `json:"evaluations" msgpack:"evaluations"`
	Sentinels    int           `json:"sentinels" msgpack:"sentinels"`
	Iterations   int           `json:"iterations,omitempty" msgpack:"iterations"`
	Converged    bool          `json:"converged" msgpack:"converged"`
	Duration     time.Duration `json:"duration_ns" msgpack:"duration"`
	Table        []Entry       `json:"table,omitempty" msgpack:"table"`
}

// Config selects and parameterizes a search. The buoyancy scale and the
// grid or initial guess are never defaulted; metric, polarization and
// iteration limits fall back to the documented defaults.
type Config struct {
	Strategy Strategy `json:"strategy"`

	// BuoyancyScale weights the buoyancy residual against the velocity
	// residuals. It has no physical derivation and must be set explicitly.
	BuoyancyScale float64 `json:"buoyancy_scale"`

	// Grid strategy. GridSpec is expanded when Grid is empty.
	Grid      Grid      `json:"grid"`
	GridSpec  *GridSpec `json:"grid_spec,omitempty"`
	Metric    string    `json:"metric,omitempty"` // std_sum (default for grid) or sum_squares
	KeepTable bool      `json:"keep_table,omitempty"`

	// Polarization is non_rotating (default) or rotating; see Polarization.
	Polarization string `json:"polarization,omitempty"`

	// Least-squares strategy.
	Initial       *Params `json:"initial,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty"`
}

// GridConfig parameterizes a grid search.
type GridConfig struct {
	Grid          Grid
	BuoyancyScale float64
	Metric        Metric
	Polarization  Polarization
	KeepTable     bool
	ChunkSize     int // candidates per work unit (default 256)
}

// LSQConfig parameterizes a least-squares fit.
type LSQConfig struct {
	Initial       Params
	BuoyancyScale float64
	Polarization  Polarization
	MaxIterations int     // default 200
	FTol          float64 // relative cost reduction (default 1e-12)
	XTol          float64 // relative step size (default 1e-10)
	GTol          float64 // gradient infinity norm (default 0: disabled)
}

func (c Config) polarization() (Polarization, error) {
	if c.Polarization == "" {
		return PolarizationNonRotating, nil
	}
	return ParsePolarization(c.Polarization)
}

func validateScale(scale float64) error {
	if !finite(scale) || scale <= 0 {
		return fmt.Errorf("%w: buoyancy scale must be positive, got %g", ErrInvalidConfig, scale)
	}
	return nil
}

// GridConfig converts c for the grid strategy.
func (c Config) GridConfig() (GridConfig, error) {
	g := c.Grid
	if g.Size() == 0 && c.GridSpec != nil {
		g = c.GridSpec.Grid()
	}
	if err := g.Validate(); err != nil {
		return GridConfig{}, err
	}
	if err := validateScale(c.BuoyancyScale); err != nil {
		return GridConfig{}, err
	}
	metric := MetricStdSum
	if c.Metric != "" {
		m, err := ParseMetric(c.Metric)
		if err != nil {
			return GridConfig{}, err
		}
		metric = m
	}
	pol, err := c.polarization()
	if err != nil {
		return GridConfig{}, err
	}
	return GridConfig{
		Grid:          g,
		BuoyancyScale: c.BuoyancyScale,
		Metric:        metric,
		Polarization:  pol,
		KeepTable:     c.KeepTable,
	}, nil
}

// LSQConfig converts c for the least-squares strategy.
func (c Config) LSQConfig() (LSQConfig, error) {
	if c.Initial == nil {
		return LSQConfig{}, fmt.Errorf("%w: least squares requires an initial guess", ErrInvalidConfig)
	}
	if err := validateScale(c.BuoyancyScale); err != nil {
		return LSQConfig{}, err
	}
	if c.MaxIterations < 0 {
		return LSQConfig{}, fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, c.MaxIterations)
	}
	pol, err := c.polarization()
	if err != nil {
		return LSQConfig{}, err
	}
	return LSQConfig{
		Initial:       *c.Initial,
		BuoyancyScale: c.BuoyancyScale,
		Polarization:  pol,
		MaxIterations: c.MaxIterations,
	}, nil
}
