package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
)

const (
	testN     = 1e-3
	testF     = 1.2e-4
	testMaxW  = 0.05
	testScale = 100.0
)

// truth is the wave used to synthesize observations. A phase of π puts a
// crest of w at the first sample, so the observed peak equals the model
// amplitude.
var truth = Params{X: -4000, Y: -6000, Z: -1500, Phase: math.Pi}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// syntheticSet samples the truth wave along a four hour descending profile.
func syntheticSet(t testing.TB) *observation.Set {
	t.Helper()
	w, err := newModel(truth, testN, testF, testMaxW, PolarizationNonRotating)
	if err != nil {
		t.Fatalf("newModel(truth) failed: %v", err)
	}
	obs := observation.Synthesize(w, gravitywave.Background{N: testN, F: testF}, observation.ProfileTrack(240, 60, -0.1, 0.2))
	if err := obs.Validate(); err != nil {
		t.Fatalf("synthetic set invalid: %v", err)
	}
	return obs
}

func TestSyntheticPeakMatchesAmplitude(t *testing.T) {
	obs := syntheticSet(t)
	if got := obs.MaxAbsW(); math.Abs(got-testMaxW) > 1e-12 {
		t.Errorf("MaxAbsW = %.15g, want %g", got, testMaxW)
	}
}

func TestNewModelPinsAmplitude(t *testing.T) {
	obs := syntheticSet(t)
	for _, p := range []Params{
		truth,
		{X: 2500, Y: -9000, Z: -800, Phase: 1},
		{X: -12000, Y: 3000, Z: 400, Phase: 4},
	} {
		w, err := NewModel(p, obs, PolarizationNonRotating)
		if err != nil {
			t.Fatalf("NewModel(%v) failed: %v", p, err)
		}
		if got := w.Magnitudes().W0; math.Abs(got-testMaxW)/testMaxW > 1e-9 {
			t.Errorf("%v: |w| amplitude = %g, want %g", p, got, testMaxW)
		}
		if w.N != testN || w.F != testF || w.Phase0 != p.Phase {
			t.Errorf("%v: background or phase not carried: %+v", p, w)
		}
	}
}

func TestNewModelDegenerate(t *testing.T) {
	obs := syntheticSet(t)
	for _, p := range []Params{
		{X: 0, Y: -6000, Z: -1500},
		{X: -4000, Y: 0, Z: -1500},
		{X: -4000, Y: -6000, Z: 0},
		{},
	} {
		if _, err := NewModel(p, obs, PolarizationNonRotating); !errors.Is(err, ErrDegenerateCandidate) {
			t.Errorf("NewModel(%v) error = %v, want ErrDegenerateCandidate", p, err)
		}
	}
}

func TestCostSentinel(t *testing.T) {
	obs := syntheticSet(t)
	ev := NewEvaluator(obs, testScale, PolarizationNonRotating)

	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"zero x", Params{X: 0, Y: -6000, Z: -1500, Phase: 1}, ErrDegenerateCandidate},
		{"zero y", Params{X: -4000, Y: 0, Z: -1500, Phase: 1}, ErrDegenerateCandidate},
		{"zero z", Params{X: -4000, Y: -6000, Z: 0, Phase: 1}, ErrDegenerateCandidate},
		{"overflowing wavenumber", Params{X: 1e-300, Y: -6000, Z: -1500}, ErrUnphysicalDispersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, m := range []Metric{MetricStdSum, MetricSumSquares} {
				c, err := ev.Cost(tt.p, m)
				if !errors.Is(err, tt.want) {
					t.Errorf("%v: error = %v, want %v", m, err, tt.want)
				}
				if c != SentinelCost {
					t.Errorf("%v: cost = %g, want sentinel %g", m, c, SentinelCost)
				}
			}
		})
	}
}

func TestCostAtTruth(t *testing.T) {
	obs := syntheticSet(t)
	ev := NewEvaluator(obs, testScale, PolarizationNonRotating)

	for _, m := range []Metric{MetricStdSum, MetricSumSquares} {
		c, err := ev.Cost(truth, m)
		if err != nil {
			t.Fatalf("%v: Cost(truth) failed: %v", m, err)
		}
		if c > 1e-12 {
			t.Errorf("%v: Cost(truth) = %g, want ~0", m, c)
		}

		off, err := ev.Cost(Params{X: -4400, Y: -6000, Z: -1500, Phase: math.Pi}, m)
		if err != nil {
			t.Fatalf("%v: Cost(off) failed: %v", m, err)
		}
		if off <= c {
			t.Errorf("%v: perturbed cost %g not above truth cost %g", m, off, c)
		}
	}
}

// TestStdSumIgnoresOffset checks that a constant offset in one channel does
// not change the std_sum cost but does change sum_squares.
func TestStdSumIgnoresOffset(t *testing.T) {
	obs := syntheticSet(t)
	shifted := observation.FromSamples(nil, obs.N, obs.F)
	for i := 0; i < obs.Len(); i++ {
		s := obs.Sample(i)
		s.U += 0.01
		shifted.Append(s)
	}

	p := Params{X: -3000, Y: -7000, Z: -1200, Phase: 2}
	a := NewEvaluator(obs, testScale, PolarizationNonRotating)
	b := NewEvaluator(shifted, testScale, PolarizationNonRotating)

	ca, _ := a.Cost(p, MetricStdSum)
	cb, _ := b.Cost(p, MetricStdSum)
	if math.Abs(ca-cb) > 1e-12*math.Max(1, ca) {
		t.Errorf("std_sum changed under offset: %g vs %g", ca, cb)
	}

	sa, _ := a.Cost(p, MetricSumSquares)
	sb, _ := b.Cost(p, MetricSumSquares)
	if sa == sb {
		t.Errorf("sum_squares unchanged under offset: %g", sa)
	}
}

func TestResidualLayout(t *testing.T) {
	obs := syntheticSet(t)
	ev := NewEvaluator(obs, testScale, PolarizationNonRotating)
	n := obs.Len()

	p := Params{X: -3000, Y: -7000, Z: -1200, Phase: 2}
	w, err := NewModel(p, obs, PolarizationNonRotating)
	if err != nil {
		t.Fatal(err)
	}
	r := make([]float64, ev.Len())
	if err := ev.Residuals(p, r); err != nil {
		t.Fatal(err)
	}
	if len(r) != 4*n {
		t.Fatalf("len = %d, want %d", len(r), 4*n)
	}

	i := 17
	u, v, wv, b := w.Fields(obs.Point(i))
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"w", r[i], wv - obs.W[i]},
		{"u", r[n+i], u - obs.U[i]},
		{"v", r[2*n+i], v - obs.V[i]},
		{"b", r[3*n+i], testScale * (b - obs.B[i])},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s residual = %g, want %g", c.name, c.got, c.want)
		}
	}

	if err := ev.Residuals(Params{}, r); err == nil {
		t.Fatal("expected error for degenerate params")
	}
	for i, v := range r {
		if !math.IsNaN(v) {
			t.Fatalf("r[%d] = %g after failed evaluation, want NaN", i, v)
		}
	}
}

// TestNonRotatingPolarization pins the fitting convention: f enters the
// frequency and the reference amplitude but not the u and v polarization.
// The observations are built from the closed forms directly.
func TestNonRotatingPolarization(t *testing.T) {
	k, l, m := truth.Wavenumbers()
	om := gravitywave.Rotating3D.Omega(testN, k, l, m, testF)
	phi0 := testMaxW * (testN*testN - testF*testF) * m / (om * (k*k + l*l + m*m))
	d := testN*testN - om*om

	obs := observation.FromSamples(nil, testN, testF)
	for _, tp := range observation.ProfileTrack(240, 60, -0.1, 0.2) {
		theta := k*tp.Dist + m*tp.Depth - om*tp.Time + truth.Phase
		c, sn := math.Cos(theta), math.Sin(theta)
		obs.Append(observation.Sample{
			Time:  tp.Time,
			Dist:  tp.Dist,
			Depth: tp.Depth,
			U:     phi0 * k / om * c,
			V:     phi0 * l / om * c,
			W:     -phi0 * m * om / d * c,
			B:     -phi0 * m * testN * testN / d * sn,
		})
	}

	w, err := NewModel(truth, obs, PolarizationNonRotating)
	if err != nil {
		t.Fatal(err)
	}
	if w.F != 0 || w.Omega != om {
		t.Errorf("model F = %g, omega = %g; want 0, %g", w.F, w.Omega, om)
	}
	mag := w.Magnitudes()
	if math.Abs(mag.U0-math.Abs(phi0*k/om)) > 1e-12 || math.Abs(mag.V0-math.Abs(phi0*l/om)) > 1e-12 {
		t.Errorf("|u|, |v| = %g, %g; want %g, %g", mag.U0, mag.V0, math.Abs(phi0*k/om), math.Abs(phi0*l/om))
	}

	flat, err := NewEvaluator(obs, testScale, PolarizationNonRotating).Cost(truth, MetricSumSquares)
	if err != nil {
		t.Fatal(err)
	}
	if flat > 1e-12 {
		t.Errorf("non-rotating Cost(truth) = %g, want ~0", flat)
	}

	rot, err := NewEvaluator(obs, testScale, PolarizationRotating).Cost(truth, MetricSumSquares)
	if err != nil {
		t.Fatal(err)
	}
	if rot < 1e-3 {
		t.Errorf("rotating Cost(truth) = %g, want a clear mismatch", rot)
	}
}

func TestRotatingPolarization(t *testing.T) {
	w, err := newModel(truth, testN, testF, testMaxW, PolarizationRotating)
	if err != nil {
		t.Fatal(err)
	}
	if w.F != testF {
		t.Fatalf("model F = %g, want %g", w.F, testF)
	}
	obs := observation.Synthesize(w, gravitywave.Background{N: testN, F: testF}, observation.ProfileTrack(240, 60, -0.1, 0.2))

	res, err := NewEngine(2, testLogger()).Run(context.Background(), obs, Config{
		Strategy:      StrategyGrid,
		BuoyancyScale: testScale,
		Grid:          truthGrid(),
		Polarization:  "rotating",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Best != truth {
		t.Errorf("best = %v, want %v", res.Best, truth)
	}
	if res.Polarization != "rotating" {
		t.Errorf("result polarization = %q, want rotating", res.Polarization)
	}

	_, err = NewEngine(1, testLogger()).Run(context.Background(), obs, Config{
		Strategy:      StrategyGrid,
		BuoyancyScale: testScale,
		Grid:          truthGrid(),
		Polarization:  "sideways",
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown polarization error = %v, want ErrInvalidConfig", err)
	}
}

func TestParsePolarization(t *testing.T) {
	for _, p := range []Polarization{PolarizationNonRotating, PolarizationRotating} {
		got, err := ParsePolarization(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolarization(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolarization(""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParsePolarization(\"\") error = %v, want ErrInvalidConfig", err)
	}
}

// TestConfigJSON checks that a range-described grid survives the JSON the API
// decodes and digests, and that an unset explicit grid is still emitted.
func TestConfigJSON(t *testing.T) {
	in := Config{
		Strategy:      StrategyGrid,
		BuoyancyScale: testScale,
		GridSpec: &GridSpec{
			X:      AxisSpec{Start: -8000, Stop: 0, Step: 2000},
			Y:      AxisSpec{Start: -6000, Stop: 6001, Step: 12000},
			Z:      AxisSpec{Start: -3000, Stop: -500, Step: 750},
			Phases: 4,
		},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["grid"]; !ok {
		t.Errorf("grid key missing from %s", b)
	}

	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	gc, err := out.GridConfig()
	if err != nil {
		t.Fatalf("GridConfig: %v", err)
	}
	if gc.Grid.Size() != in.GridSpec.Size() || gc.Polarization != PolarizationNonRotating {
		t.Errorf("decoded grid size %d, polarization %v; want %d, non_rotating",
			gc.Grid.Size(), gc.Polarization, in.GridSpec.Size())
	}
}

func TestParseMetric(t *testing.T) {
	for _, m := range []Metric{MetricStdSum, MetricSumSquares} {
		got, err := ParseMetric(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMetric(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMetric("l1"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseMetric(l1) error = %v, want ErrInvalidConfig", err)
	}
}

func TestParamsNormalized(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi / 2, 3 * math.Pi / 2},
		{5 * math.Pi, math.Pi},
		{-2 * math.Pi, 0},
	}
	for _, tt := range tests {
		got := Params{Phase: tt.in}.Normalized().Phase
		if math.Abs(got-tt.want) > 1e-12 || got < 0 || got >= 2*math.Pi {
			t.Errorf("Normalized(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}
