package search

import (
	"context"
	"errors"
	"math"
	"testing"
)

func truthGrid() Grid {
	return Grid{
		X:     []float64{-8000, -4000, -2000, 3000},
		Y:     []float64{-6000, 6000},
		Z:     []float64{-3000, -1500, -750},
		Phase: PhaseAxis(4),
	}
}

func TestGridSelectsTruth(t *testing.T) {
	obs := syntheticSet(t)
	engine := NewEngine(4, testLogger())

	for _, m := range []Metric{MetricStdSum, MetricSumSquares} {
		res, err := engine.Grid(context.Background(), obs, GridConfig{
			Grid:          truthGrid(),
			BuoyancyScale: testScale,
			Metric:        m,
		})
		if err != nil {
			t.Fatalf("%v: Grid failed: %v", m, err)
		}
		if res.Best != truth {
			t.Errorf("%v: best = %v, want %v", m, res.Best, truth)
		}
		if res.Cost > 1e-12 {
			t.Errorf("%v: cost = %g, want ~0", m, res.Cost)
		}
		if res.Evaluations != truthGrid().Size() {
			t.Errorf("%v: evaluations = %d, want %d", m, res.Evaluations, truthGrid().Size())
		}
		if res.Sentinels != 0 || !res.Converged || res.Strategy != StrategyGrid {
			t.Errorf("%v: unexpected result %+v", m, res)
		}
		if res.Table != nil {
			t.Errorf("%v: table kept without KeepTable", m)
		}
	}
}

// TestGridDeterministic verifies that worker count and chunking do not
// change the selected candidate.
func TestGridDeterministic(t *testing.T) {
	obs := syntheticSet(t)
	g := truthGrid()

	var first *Result
	for _, workers := range []int{1, 3, 8} {
		for _, chunk := range []int{1, 7, 1000} {
			res, err := NewEngine(workers, testLogger()).Grid(context.Background(), obs, GridConfig{
				Grid:          g,
				BuoyancyScale: testScale,
				ChunkSize:     chunk,
				KeepTable:     true,
			})
			if err != nil {
				t.Fatalf("workers=%d chunk=%d: %v", workers, chunk, err)
			}
			if first == nil {
				first = res
				continue
			}
			if res.Best != first.Best || res.Cost != first.Cost {
				t.Errorf("workers=%d chunk=%d: best %v cost %g, want %v cost %g",
					workers, chunk, res.Best, res.Cost, first.Best, first.Cost)
			}
			for i := range res.Table {
				if res.Table[i] != first.Table[i] {
					t.Fatalf("workers=%d chunk=%d: table[%d] = %+v, want %+v",
						workers, chunk, i, res.Table[i], first.Table[i])
				}
			}
		}
	}
}

func TestGridTable(t *testing.T) {
	obs := syntheticSet(t)
	g := truthGrid()
	res, err := NewEngine(2, testLogger()).Grid(context.Background(), obs, GridConfig{
		Grid:          g,
		BuoyancyScale: testScale,
		KeepTable:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Table) != g.Size() {
		t.Fatalf("table size = %d, want %d", len(res.Table), g.Size())
	}

	ev := NewEvaluator(obs, testScale, PolarizationNonRotating)
	minCost := math.Inf(1)
	for i, e := range res.Table {
		if e.Params != g.At(i) {
			t.Errorf("table[%d].Params = %v, want %v", i, e.Params, g.At(i))
		}
		want, _ := ev.Cost(e.Params, MetricStdSum)
		if e.Cost != want {
			t.Errorf("table[%d].Cost = %g, want %g", i, e.Cost, want)
		}
		minCost = math.Min(minCost, e.Cost)
	}
	if res.Cost != minCost {
		t.Errorf("best cost %g is not the table minimum %g", res.Cost, minCost)
	}
}

func TestGridTieGoesToLowestIndex(t *testing.T) {
	obs := syntheticSet(t)
	// Identical candidates tie exactly.
	g := Grid{
		X:     []float64{-4000},
		Y:     []float64{-6000},
		Z:     []float64{-1500},
		Phase: []float64{1, 1, 1},
	}
	res, err := NewEngine(3, testLogger()).Grid(context.Background(), obs, GridConfig{
		Grid:          g,
		BuoyancyScale: testScale,
		ChunkSize:     1,
		KeepTable:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Table[0].Cost != res.Table[2].Cost {
		t.Fatalf("identical candidates scored differently: %+v", res.Table)
	}
	if res.Best != g.At(0) {
		t.Errorf("best = %v, want %v", res.Best, g.At(0))
	}
}

func TestGridSentinels(t *testing.T) {
	obs := syntheticSet(t)
	g := truthGrid()
	g.X = append([]float64{0}, g.X...)

	res, err := NewEngine(4, testLogger()).Grid(context.Background(), obs, GridConfig{
		Grid:          g,
		BuoyancyScale: testScale,
		KeepTable:     true,
	})
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}
	perX := len(g.Y) * len(g.Z) * len(g.Phase)
	if res.Sentinels != perX {
		t.Errorf("sentinels = %d, want %d", res.Sentinels, perX)
	}
	for i := 0; i < perX; i++ {
		if res.Table[i].Cost != SentinelCost {
			t.Errorf("table[%d] cost = %g, want sentinel", i, res.Table[i].Cost)
		}
	}
	if res.Best != truth {
		t.Errorf("best = %v, want %v", res.Best, truth)
	}
}

func TestGridAllSentinel(t *testing.T) {
	obs := syntheticSet(t)
	_, err := NewEngine(2, testLogger()).Grid(context.Background(), obs, GridConfig{
		Grid:          Grid{X: []float64{0}, Y: []float64{-6000}, Z: []float64{-1500, 0}, Phase: PhaseAxis(3)},
		BuoyancyScale: testScale,
	})
	if !errors.Is(err, ErrNoValidCandidate) {
		t.Errorf("error = %v, want ErrNoValidCandidate", err)
	}
}

func TestGridCancelled(t *testing.T) {
	obs := syntheticSet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(2, testLogger()).Grid(ctx, obs, GridConfig{
		Grid:          truthGrid(),
		BuoyancyScale: testScale,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGridRejectsInvalidConfig(t *testing.T) {
	obs := syntheticSet(t)
	engine := NewEngine(1, testLogger())

	tests := []struct {
		name string
		cfg  GridConfig
	}{
		{"empty axis", GridConfig{Grid: Grid{X: []float64{1}, Y: []float64{1}, Z: []float64{1}}, BuoyancyScale: 1}},
		{"nan axis", GridConfig{Grid: Grid{X: []float64{math.NaN()}, Y: []float64{1}, Z: []float64{1}, Phase: []float64{0}}, BuoyancyScale: 1}},
		{"zero scale", GridConfig{Grid: truthGrid()}},
		{"negative scale", GridConfig{Grid: truthGrid(), BuoyancyScale: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Grid(context.Background(), obs, tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// overflowGrid has 2¹⁶ values on every axis, 2⁶⁴ candidates in total.
func overflowGrid() Grid {
	axis := make([]float64, 1<<16)
	for i := range axis {
		axis[i] = float64(i + 1)
	}
	return Grid{X: axis, Y: axis, Z: axis, Phase: axis}
}

func TestGridSizeSaturates(t *testing.T) {
	g := overflowGrid()
	if got := g.Size(); got != math.MaxInt {
		t.Errorf("Size = %d, want math.MaxInt", got)
	}
	if err := g.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate = %v, want ErrInvalidConfig", err)
	}

	small := Grid{X: g.X[:2], Y: g.Y[:3], Z: g.Z[:1], Phase: g.Phase[:4]}
	if got := small.Size(); got != 24 {
		t.Errorf("Size = %d, want 24", got)
	}
	if err := small.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestGridRejectsOverflowingTable(t *testing.T) {
	obs := syntheticSet(t)
	engine := NewEngine(2, testLogger())

	res, err := engine.Grid(context.Background(), obs, GridConfig{
		Grid:          overflowGrid(),
		BuoyancyScale: testScale,
		KeepTable:     true,
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestCandidates(t *testing.T) {
	g := Grid{
		X:     []float64{1, 2},
		Y:     []float64{3, 4, 5},
		Z:     []float64{6},
		Phase: []float64{0, 1},
	}
	if g.Size() != 12 {
		t.Fatalf("Size = %d, want 12", g.Size())
	}

	// Ranged twice to check the sequence restarts.
	for pass := 0; pass < 2; pass++ {
		n := 0
		for i, p := range g.Candidates() {
			if i != n {
				t.Fatalf("pass %d: index %d, want %d", pass, i, n)
			}
			if p != g.At(i) {
				t.Errorf("pass %d: candidate %d = %v, At = %v", pass, i, p, g.At(i))
			}
			n++
		}
		if n != g.Size() {
			t.Errorf("pass %d: yielded %d candidates, want %d", pass, n, g.Size())
		}
	}

	if first := g.At(0); first != (Params{X: 1, Y: 3, Z: 6, Phase: 0}) {
		t.Errorf("At(0) = %v", first)
	}
	if second := g.At(1); second != (Params{X: 1, Y: 3, Z: 6, Phase: 1}) {
		t.Errorf("At(1) = %v, phase should vary fastest", second)
	}
	if last := g.At(11); last != (Params{X: 2, Y: 5, Z: 6, Phase: 1}) {
		t.Errorf("At(11) = %v", last)
	}

	// Early termination.
	n := 0
	for range g.Candidates() {
		n++
		if n == 5 {
			break
		}
	}
	if n != 5 {
		t.Errorf("early break after %d", n)
	}
}

func TestArange(t *testing.T) {
	tests := []struct {
		name              string
		start, stop, step float64
		want              []float64
	}{
		{"ascending", 0, 1, 0.25, []float64{0, 0.25, 0.5, 0.75}},
		{"partial last", 0, 1, 0.3, []float64{0, 0.3, 0.6, 0.8999999999999999}},
		{"descending", 0, -1, -0.5, []float64{0, -0.5}},
		{"empty", 0, 0, 1, nil},
		{"wrong sign", 0, 1, -1, nil},
		{"zero step", 0, 1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Arange(tt.start, tt.stop, tt.step)
			if len(got) != len(tt.want) {
				t.Fatalf("Arange = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("Arange[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLinspaceAndPhaseAxis(t *testing.T) {
	ls := Linspace(-1, 1, 5)
	want := []float64{-1, -0.5, 0, 0.5, 1}
	for i := range want {
		if math.Abs(ls[i]-want[i]) > 1e-15 {
			t.Errorf("Linspace[%d] = %g, want %g", i, ls[i], want[i])
		}
	}
	if got := Linspace(3, 7, 1); len(got) != 1 || got[0] != 3 {
		t.Errorf("Linspace n=1 = %v", got)
	}

	ph := PhaseAxis(8)
	if len(ph) != 8 || ph[0] != 0 {
		t.Fatalf("PhaseAxis(8) = %v", ph)
	}
	for _, v := range ph {
		if v < 0 || v >= 2*math.Pi {
			t.Errorf("phase %g outside [0, 2π)", v)
		}
	}
	if PhaseAxis(0) != nil {
		t.Error("PhaseAxis(0) should be empty")
	}
}

func TestGridSpec(t *testing.T) {
	s := GridSpec{
		X:      AxisSpec{Start: -8000, Stop: 0, Step: 2000},
		Y:      AxisSpec{Start: -6000, Stop: 6001, Step: 12000},
		Z:      AxisSpec{Start: -3000, Stop: -500, Step: 750},
		Phases: 4,
	}
	g := s.Grid()
	if len(g.X) != 4 || len(g.Y) != 2 || len(g.Z) != 4 || len(g.Phase) != 4 {
		t.Errorf("axis sizes = %d %d %d %d", len(g.X), len(g.Y), len(g.Z), len(g.Phase))
	}
	if g.X[1] != -6000 || g.Y[1] != 6000 || g.Z[2] != -1500 {
		t.Errorf("unexpected axis values: %+v", g)
	}
	if s.Size() != g.Size() {
		t.Errorf("GridSpec.Size = %d, Grid.Size = %d", s.Size(), g.Size())
	}

	huge := GridSpec{
		X:      AxisSpec{Start: 0, Stop: 1e12, Step: 1e-3},
		Y:      AxisSpec{Start: 0, Stop: 1e12, Step: 1e-3},
		Z:      AxisSpec{Start: 0, Stop: 1, Step: 1},
		Phases: 4,
	}
	if huge.Size() != math.MaxInt {
		t.Errorf("huge GridSpec Size = %d, want saturation", huge.Size())
	}
	if (GridSpec{X: s.X, Y: s.Y, Z: s.Z}).Size() != 0 {
		t.Error("GridSpec without phases should be empty")
	}
}

func BenchmarkGridSearch(b *testing.B) {
	obs := syntheticSet(b)
	engine := NewEngine(0, testLogger())
	cfg := GridConfig{
		Grid: GridSpec{
			X:      AxisSpec{Start: -10000, Stop: 10000, Step: 1000},
			Y:      AxisSpec{Start: -10000, Stop: 10000, Step: 2000},
			Z:      AxisSpec{Start: -3000, Stop: 0, Step: 500},
			Phases: 8,
		}.Grid(),
		BuoyancyScale: testScale,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Grid(context.Background(), obs, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
