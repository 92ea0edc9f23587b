package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	const (
		N = 1e-3
		f = 1.2e-4
	)
	bg := gravitywave.Background{N: N, F: f}
	p := search.Params{X: -10000, Y: -10000, Z: -1000}
	k, l, m := p.Wavenumbers()

	fmt.Printf("Wavelengths: X=%.0f Y=%.0f Z=%.0f m\n", p.X, p.Y, p.Z)
	fmt.Printf("Wavenumbers: k=%.6g l=%.6g m=%.6g rad/m\n", k, l, m)
	for _, b := range []gravitywave.Branch{
		gravitywave.NonRotating2D,
		gravitywave.NonRotating3D,
		gravitywave.Rotating2D,
		gravitywave.Rotating3D,
	} {
		om := b.Omega(N, k, l, m, f)
		fmt.Printf("  %-16s omega=%.6g rad/s period=%.2f h\n", b, om, 2*math.Pi/om/3600)
	}

	w, err := search.WaveFor(p, bg, 0.05, search.PolarizationNonRotating)
	if err != nil {
		fmt.Println("ERROR building wave:", err)
		os.Exit(1)
	}
	mag := w.Magnitudes()
	fmt.Printf("Amplitudes: phi0=%.6g |u|=%.6g |v|=%.6g |w|=%.6g |b|=%.6g\n",
		real(w.Phi0), mag.U0, mag.V0, mag.W0, mag.B0)

	// Round trip: sample the wave, then recover it by grid search and
	// least-squares refinement.
	obs := observation.Synthesize(w, bg, observation.ProfileTrack(240, 60, -0.1, 0.2))
	engine := search.NewEngine(0, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	grid, err := engine.Run(ctx, obs, search.Config{
		Strategy:      search.StrategyGrid,
		BuoyancyScale: 100,
		GridSpec: &search.GridSpec{
			X:      search.AxisSpec{Start: -14000, Stop: -6000, Step: 1000},
			Y:      search.AxisSpec{Start: -14000, Stop: -6000, Step: 1000},
			Z:      search.AxisSpec{Start: -1400, Stop: -600, Step: 100},
			Phases: 8,
		},
	})
	if err != nil {
		fmt.Println("ERROR grid search:", err)
		os.Exit(1)
	}
	fmt.Printf("Grid:  %v cost=%.4g evals=%d in %v\n", grid.Best, grid.Cost, grid.Evaluations, grid.Duration)

	initial := grid.Best
	fit, err := engine.Run(ctx, obs, search.Config{
		Strategy:      search.StrategyLeastSquares,
		BuoyancyScale: 100,
		Initial:       &initial,
	})
	if err != nil {
		fmt.Println("ERROR least squares:", err)
		os.Exit(1)
	}
	fmt.Printf("Fit:   %v cost=%.4g iters=%d in %v\n", fit.Best, fit.Cost, fit.Iterations, fit.Duration)
}
