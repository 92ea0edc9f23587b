package search

import (
	"fmt"
	"math"

	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SentinelCost is assigned to candidates that cannot be evaluated. It is
// finite so that sorting and arg-min selection stay well defined.
const SentinelCost = 1e10

// Metric selects how residuals are reduced to a scalar cost.
type Metric uint8

const (
	// MetricStdSum sums the population standard deviation of each channel's
	// residual. Offsets within a channel do not count, which suits coarse
	// ranking of grid candidates.
	MetricStdSum Metric = iota
	// MetricSumSquares is the sum of squared stacked residuals, the quantity
	// least-squares minimizes.
	MetricSumSquares
)

func (m Metric) String() string {
	switch m {
	case MetricStdSum:
		return "std_sum"
	case MetricSumSquares:
		return "sum_squares"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

// ParseMetric is the inverse of Metric.String.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "std_sum", "std":
		return MetricStdSum, nil
	case "sum_squares", "ssq":
		return MetricSumSquares, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, s)
	}
}

// Polarization selects how the Coriolis parameter enters the horizontal
// velocity amplitudes of a candidate. f always sets ω and φ0.
type Polarization uint8

const (
	// PolarizationNonRotating evaluates u and v with f = 0, i.e.
	// u = φ0·k/ω and v = φ0·l/ω. This is the convention the float analyses
	// were fitted with.
	PolarizationNonRotating Polarization = iota
	// PolarizationRotating uses the full rotating polarization
	// u = φ0(kω + i·l·f)/(ω²−f²), v = φ0(lω − i·k·f)/(ω²−f²).
	PolarizationRotating
)

func (p Polarization) String() string {
	switch p {
	case PolarizationNonRotating:
		return "non_rotating"
	case PolarizationRotating:
		return "rotating"
	default:
		return fmt.Sprintf("polarization(%d)", uint8(p))
	}
}

// ParsePolarization is the inverse of Polarization.String.
func ParsePolarization(s string) (Polarization, error) {
	switch s {
	case "non_rotating":
		return PolarizationNonRotating, nil
	case "rotating":
		return PolarizationRotating, nil
	default:
		return 0, fmt.Errorf("%w: unknown polarization %q", ErrInvalidConfig, s)
	}
}

// channels in the stacked residual, in order: w, u, v, scaled b.
const channels = 4

// Evaluator computes residuals and costs of candidates against one
// observation set. It owns scratch space and must not be shared between
// goroutines; the observation set itself is only read.
type Evaluator struct {
	obs   *observation.Set
	maxW  float64
	scale float64
	pol   Polarization
	resid []float64
}

// NewEvaluator returns an evaluator that weights the buoyancy residual by
// scale and builds candidate waves with polarization pol.
func NewEvaluator(obs *observation.Set, scale float64, pol Polarization) *Evaluator {
	return &Evaluator{
		obs:   obs,
		maxW:  obs.MaxAbsW(),
		scale: scale,
		pol:   pol,
		resid: make([]float64, channels*obs.Len()),
	}
}

// Len returns the length of the stacked residual vector.
func (e *Evaluator) Len() int {
	return channels * e.obs.Len()
}

// Residuals writes the stacked residual [w−W; u−U; v−V; scale·(b−B)] of p
// into dst, which must have length Len. On error dst is filled with NaN.
func (e *Evaluator) Residuals(p Params, dst []float64) error {
	n := e.obs.Len()
	if len(dst) != channels*n {
		panic("search: residual length mismatch")
	}

	w, err := newModel(p, e.obs.N, e.obs.F, e.maxW, e.pol)
	if err != nil {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return err
	}

	for i := 0; i < n; i++ {
		u, v, wv, b := w.Fields(e.obs.Point(i))
		dst[i] = wv - e.obs.W[i]
		dst[n+i] = u - e.obs.U[i]
		dst[2*n+i] = v - e.obs.V[i]
		dst[3*n+i] = e.scale * (b - e.obs.B[i])
	}
	return nil
}

// Cost returns the cost of p under metric. The returned cost is always
// finite: candidates that cannot be evaluated receive SentinelCost together
// with an error describing why.
func (e *Evaluator) Cost(p Params, metric Metric) (float64, error) {
	if err := e.Residuals(p, e.resid); err != nil {
		return SentinelCost, err
	}

	var c float64
	switch metric {
	case MetricStdSum:
		n := e.obs.Len()
		for ch := 0; ch < channels; ch++ {
			c += stat.PopStdDev(e.resid[ch*n:(ch+1)*n], nil)
		}
	case MetricSumSquares:
		c = floats.Dot(e.resid, e.resid)
	default:
		panic(fmt.Sprintf("search: unknown metric %d", metric))
	}

	if !finite(c) {
		return SentinelCost, fmt.Errorf("%w: %v has non-finite cost", ErrUnphysicalDispersion, p)
	}
	return c, nil
}
