package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"github.com/liqun1981/lee-wave-analysis/internal/results"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
	"github.com/spf13/cobra"
)

// Flags shared by grid and fit.
var (
	obsN     float64
	obsF     float64
	obsLat   float64
	scale    float64
	asJSON   bool
	saveRun  bool
	workers  int
	metricIn string
	polIn    string
)

// Grid flags.
var (
	gridX, gridY, gridZ string
	gridPhases          int
	gridTable           bool
)

// Fit flags.
var (
	fitX0, fitY0, fitZ0, fitPhase0 float64
	fitMaxIter                     int
)

var gridCmd = &cobra.Command{
	Use:   "grid <observations>",
	Short: "Exhaustive search over a grid of wavelengths and phases",
	Long: `Evaluate every combination of X, Y and Z wavelengths and phase offsets
and report the candidate with the lowest cost.

Axes are given as start:stop:step with stop excluded, e.g.

  leewave grid float4976.csv --n 1e-3 --lat -57.5 --scale 100 \
    --x -10000:10000:500 --y -10000:10000:500 --z -3000:0:100 --phases 16`,
	Args: cobra.ExactArgs(1),
	RunE: runGrid,
}

var fitCmd = &cobra.Command{
	Use:   "fit <observations>",
	Short: "Least-squares refinement from an initial guess",
	Args:  cobra.ExactArgs(1),
	RunE:  runFit,
}

func addObservationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&obsN, "n", 0, "buoyancy frequency N (rad/s), required for CSV input")
	f.Float64Var(&obsF, "f", 0, "Coriolis parameter f (rad/s)")
	f.Float64Var(&obsLat, "lat", 0, "latitude in degrees; sets f = 2Ω·sin(lat)")
	f.Float64Var(&scale, "scale", 0, "buoyancy residual weight (default $LEEWAVE_BUOYANCY_SCALE)")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	f.BoolVar(&saveRun, "save", false, "archive the run under $LEEWAVE_ARCHIVE_DIR")
	f.IntVar(&workers, "workers", 0, "grid worker goroutines (default $LEEWAVE_WORKERS or NumCPU)")
	f.StringVar(&polIn, "polarization", "non_rotating", "u, v polarization: non_rotating or rotating")
}

func init() {
	addObservationFlags(gridCmd)
	gridCmd.Flags().StringVar(&gridX, "x", "", "X wavelength axis start:stop:step (m)")
	gridCmd.Flags().StringVar(&gridY, "y", "", "Y wavelength axis start:stop:step (m)")
	gridCmd.Flags().StringVar(&gridZ, "z", "", "Z wavelength axis start:stop:step (m)")
	gridCmd.Flags().IntVar(&gridPhases, "phases", 8, "number of phase offsets in [0, 2π)")
	gridCmd.Flags().StringVar(&metricIn, "metric", "std_sum", "cost metric: std_sum or sum_squares")
	gridCmd.Flags().BoolVar(&gridTable, "table", false, "keep the full cost table (JSON output and archive)")
	for _, name := range []string{"x", "y", "z"} {
		gridCmd.MarkFlagRequired(name)
	}

	addObservationFlags(fitCmd)
	fitCmd.Flags().Float64Var(&fitX0, "x0", 0, "initial X wavelength (m)")
	fitCmd.Flags().Float64Var(&fitY0, "y0", 0, "initial Y wavelength (m)")
	fitCmd.Flags().Float64Var(&fitZ0, "z0", 0, "initial Z wavelength (m)")
	fitCmd.Flags().Float64Var(&fitPhase0, "phase0", 0, "initial phase offset (rad)")
	fitCmd.Flags().IntVar(&fitMaxIter, "max-iter", 0, "iteration budget (default $LEEWAVE_MAX_ITERATIONS or 200)")
	for _, name := range []string{"x0", "y0", "z0"} {
		fitCmd.MarkFlagRequired(name)
	}
}

// parseAxis parses "start:stop:step".
func parseAxis(s string) (search.AxisSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return search.AxisSpec{}, fmt.Errorf("axis %q: want start:stop:step", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return search.AxisSpec{}, fmt.Errorf("axis %q: %w", s, err)
		}
		v[i] = f
	}
	return search.AxisSpec{Start: v[0], Stop: v[1], Step: v[2]}, nil
}

// loadObservations reads a CSV or msgpack.zst observation file.
func loadObservations(cmd *cobra.Command, path string, logger *slog.Logger) (*observation.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".msgpack.zst") {
		return observation.Decode(f)
	}

	if !cmd.Flags().Changed("n") {
		return nil, errors.New("--n is required for CSV input")
	}
	fval := obsF
	if cmd.Flags().Changed("lat") {
		fval = gravitywave.Coriolis(obsLat)
	}
	set, err := observation.ParseCSV(f, obsN, fval, logger)
	if err != nil {
		return nil, err
	}
	return set, set.Validate()
}

func resolveScale(env searchEnv) (float64, error) {
	if scale > 0 {
		return scale, nil
	}
	if env.BuoyancyScale > 0 {
		return env.BuoyancyScale, nil
	}
	return 0, errors.New("a buoyancy scale is required: pass --scale or set LEEWAVE_BUOYANCY_SCALE")
}

func runGrid(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	env := loadSearchConfig(logger)

	obs, err := loadObservations(cmd, args[0], logger)
	if err != nil {
		return err
	}
	sc, err := resolveScale(env)
	if err != nil {
		return err
	}

	spec := search.GridSpec{Phases: gridPhases}
	for _, a := range []struct {
		in  string
		out *search.AxisSpec
	}{{gridX, &spec.X}, {gridY, &spec.Y}, {gridZ, &spec.Z}} {
		if *a.out, err = parseAxis(a.in); err != nil {
			return err
		}
	}

	cfg := search.Config{
		Strategy:      search.StrategyGrid,
		BuoyancyScale: sc,
		GridSpec:      &spec,
		Metric:        metricIn,
		Polarization:  polIn,
		KeepTable:     gridTable,
	}
	return execute(cmd, logger, env, obs, cfg)
}

func runFit(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	env := loadSearchConfig(logger)

	obs, err := loadObservations(cmd, args[0], logger)
	if err != nil {
		return err
	}
	sc, err := resolveScale(env)
	if err != nil {
		return err
	}
	maxIter := env.MaxIterations
	if fitMaxIter > 0 {
		maxIter = fitMaxIter
	}

	cfg := search.Config{
		Strategy:      search.StrategyLeastSquares,
		BuoyancyScale: sc,
		Initial:       &search.Params{X: fitX0, Y: fitY0, Z: fitZ0, Phase: fitPhase0},
		Polarization:  polIn,
		MaxIterations: maxIter,
	}
	return execute(cmd, logger, env, obs, cfg)
}

func execute(cmd *cobra.Command, logger *slog.Logger, env searchEnv, obs *observation.Set, cfg search.Config) error {
	w := workers
	if w <= 0 {
		w = env.Workers
	}
	engine := search.NewEngine(w, logger)

	res, err := engine.Run(cmd.Context(), obs, cfg)
	if err != nil {
		return err
	}

	var runID string
	if saveRun {
		archiveCfg := loadArchiveConfig(logger)
		archive, err := results.Open(archiveCfg.Dir, archiveCfg.MaxRuns, logger)
		if err != nil {
			return err
		}
		defer archive.Close()
		rec, err := archive.Save(cmd.Context(), cfg, obs, res)
		if err != nil {
			return err
		}
		runID = rec.ID
	}

	return printResult(cmd.OutOrStdout(), obs, res, runID)
}

func printResult(out io.Writer, obs *observation.Set, res *search.Result, runID string) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*search.Result
			RunID string `json:"run_id,omitempty"`
		}{res, runID})
	}

	b := res.Best
	fmt.Fprintf(out, "strategy     %s (%s)\n", res.Strategy, res.Metric)
	fmt.Fprintf(out, "wavelengths  X=%.1f m  Y=%.1f m  Z=%.1f m\n", b.X, b.Y, b.Z)
	fmt.Fprintf(out, "phase        %.4f rad\n", b.Phase)
	fmt.Fprintf(out, "cost         %.6g\n", res.Cost)
	fmt.Fprintf(out, "evaluations  %d (%d rejected)\n", res.Evaluations, res.Sentinels)
	if res.Iterations > 0 {
		fmt.Fprintf(out, "iterations   %d\n", res.Iterations)
	}
	pol, _ := search.ParsePolarization(res.Polarization)
	if w, err := search.NewModel(b, obs, pol); err == nil {
		m := w.Magnitudes()
		fmt.Fprintf(out, "omega        %.4g rad/s (period %.2f h)\n", w.Omega, 2*math.Pi/w.Omega/3600)
		fmt.Fprintf(out, "amplitudes   |u|=%.4g |v|=%.4g |w|=%.4g m/s  |b|=%.4g m/s²\n", m.U0, m.V0, m.W0, m.B0)
	}
	fmt.Fprintf(out, "duration     %s\n", res.Duration)
	if runID != "" {
		fmt.Fprintf(out, "run          %s\n", runID)
	}
	return nil
}
