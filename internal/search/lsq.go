package search

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/liqun1981/lee-wave-analysis/internal/metrics"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxIterations = 200
	defaultFTol          = 1e-12
	defaultXTol          = 1e-10

	lambdaInit  = 1e-3
	lambdaStall = 1e16
	// Floor for a damping diagonal whose Jacobian column vanished.
	minDiag = 1e-30
)

// LeastSquares refines cfg.Initial with a Levenberg–Marquardt iteration on
// the stacked residual. The wavelengths are optimized relative to their
// initial magnitudes so that meters and radians are comparably scaled.
//
// Exhausting MaxIterations returns ErrNonConvergence and no result.
func (e *Engine) LeastSquares(ctx context.Context, obs *observation.Set, cfg LSQConfig) (*Result, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if err := validateScale(cfg.BuoyancyScale); err != nil {
		return nil, err
	}
	if !cfg.Initial.Finite() {
		return nil, fmt.Errorf("%w: initial guess %v is not finite", ErrInvalidConfig, cfg.Initial)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.FTol <= 0 {
		cfg.FTol = defaultFTol
	}
	if cfg.XTol <= 0 {
		cfg.XTol = defaultXTol
	}

	start := time.Now()
	fit := newLMProblem(obs, cfg)
	res, err := fit.solve(ctx)
	duration := time.Since(start)

	metrics.RecordCandidates(string(StrategyLeastSquares), fit.evals, 0, fit.failed)
	switch {
	case err == nil:
		metrics.RecordSearch(string(StrategyLeastSquares), "ok", duration)
	case ctx.Err() != nil:
		metrics.RecordSearch(string(StrategyLeastSquares), "cancelled", duration)
	default:
		metrics.RecordSearch(string(StrategyLeastSquares), "failed", duration)
	}
	if err != nil {
		e.logger.Warn("least squares failed",
			"initial", cfg.Initial.String(),
			"iterations", fit.iter,
			"evaluations", fit.evals,
			"error", err,
		)
		return nil, err
	}

	res.Duration = duration
	e.logger.Info("least squares complete",
		"initial", cfg.Initial.String(),
		"best", res.Best.String(),
		"cost", res.Cost,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"duration_ms", duration.Milliseconds(),
	)
	return res, nil
}

// lmProblem holds the state of one fit. Parameters are stored in relative
// coordinates x, with p = x ⊙ scale.
type lmProblem struct {
	cfg   LSQConfig
	ev    *Evaluator
	scale []float64

	evals  int
	failed int
	iter   int
}

func newLMProblem(obs *observation.Set, cfg LSQConfig) *lmProblem {
	p := cfg.Initial
	return &lmProblem{
		cfg:   cfg,
		ev:    NewEvaluator(obs, cfg.BuoyancyScale, cfg.Polarization),
		scale: []float64{nonZero(p.X), nonZero(p.Y), nonZero(p.Z), 1},
	}
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return math.Abs(v)
}

func (lm *lmProblem) params(x []float64) Params {
	return paramsFromVector([]float64{
		x[0] * lm.scale[0],
		x[1] * lm.scale[1],
		x[2] * lm.scale[2],
		x[3] * lm.scale[3],
	})
}

// residuals evaluates r(x) into dst and returns the sum of squares, or +Inf
// when the point cannot be evaluated.
func (lm *lmProblem) residuals(dst, x []float64) float64 {
	lm.evals++
	if err := lm.ev.Residuals(lm.params(x), dst); err != nil {
		lm.failed++
		return math.Inf(1)
	}
	c := floats.Dot(dst, dst)
	if !finite(c) {
		lm.failed++
		return math.Inf(1)
	}
	return c
}

func (lm *lmProblem) solve(ctx context.Context) (*Result, error) {
	const n = 4
	m := lm.ev.Len()

	x := make([]float64, n)
	for i, v := range lm.cfg.Initial.vector() {
		x[i] = v / lm.scale[i]
	}

	r := make([]float64, m)
	cost := lm.residuals(r, x)
	if math.IsInf(cost, 1) {
		_, err := newModel(lm.cfg.Initial, lm.ev.obs.N, lm.ev.obs.F, lm.ev.maxW, lm.ev.pol)
		if err == nil {
			err = fmt.Errorf("%w: initial guess %v has non-finite cost", ErrUnphysicalDispersion, lm.cfg.Initial)
		}
		return nil, err
	}

	var (
		jac    = mat.NewDense(m, n, nil)
		jtj    = mat.NewSymDense(n, nil)
		damped = mat.NewSymDense(n, nil)
		grad   = mat.NewVecDense(n, nil)
		step   = mat.NewVecDense(n, nil)
		trial  = make([]float64, n)
		rTrial = make([]float64, m)
		lambda = lambdaInit
	)
	var chol mat.Cholesky
	settings := &fd.JacobianSettings{Formula: fd.Central}

	jacFn := func(y, xx []float64) {
		if math.IsInf(lm.residuals(y, xx), 1) {
			for i := range y {
				y[i] = math.NaN()
			}
		}
	}

	converged := false
	for !converged {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if lm.iter >= lm.cfg.MaxIterations {
			return nil, fmt.Errorf("%w after %d iterations (cost %g)", ErrNonConvergence, lm.iter, cost)
		}
		lm.iter++

		fd.Jacobian(jac, jacFn, x, settings)
		sanitize(jac)

		// Damped normal equations (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr, then x −= δ.
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		if lm.cfg.GTol > 0 && mat.Norm(grad, math.Inf(1)) <= lm.cfg.GTol {
			break
		}

		accepted := false
		for !accepted {
			damped.CopySym(jtj)
			for i := 0; i < n; i++ {
				d := math.Max(jtj.At(i, i), minDiag)
				damped.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}

			ok := chol.Factorize(damped)
			if ok {
				if err := chol.SolveVecTo(step, grad); err != nil {
					ok = false
				}
			}
			if !ok {
				lambda *= 10
				if lambda > lambdaStall {
					converged = true
					break
				}
				continue
			}

			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}
			trialCost := lm.residuals(rTrial, trial)

			if trialCost < cost {
				reduction := (cost - trialCost) / cost
				stepNorm := mat.Norm(step, 2)
				xNorm := floats.Norm(x, 2)

				copy(x, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-12)
				accepted = true

				if cost == 0 || reduction < lm.cfg.FTol || stepNorm <= lm.cfg.XTol*(xNorm+lm.cfg.XTol) {
					converged = true
				}
				continue
			}

			lambda *= 10
			if lambda > lambdaStall {
				// No downhill step exists at any damping: x is a local minimum
				// to working precision.
				converged = true
				break
			}
		}
	}

	best := lm.params(x).Normalized()
	return &Result{
		Strategy:     StrategyLeastSquares,
		Metric:       MetricSumSquares.String(),
		Polarization: lm.cfg.Polarization.String(),
		Best:         best,
		Cost:         cost,
		Evaluations:  lm.evals,
		Sentinels:    lm.failed,
		Iterations:   lm.iter,
		Converged:    true,
	}, nil
}

// sanitize zeroes non-finite Jacobian entries so that a failed probe on one
// side of a parameter does not poison the normal equations.
func sanitize(j *mat.Dense) {
	r, c := j.Dims()
	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			if !finite(j.At(i, k)) {
				j.Set(i, k, 0)
			}
		}
	}
}
