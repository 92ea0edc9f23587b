package search

import (
	"fmt"
	"iter"
	"math"
)

// Grid is the Cartesian product of candidate values on each axis. Candidates
// are enumerated with X outermost and Phase innermost.
type Grid struct {
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
	Z     []float64 `json:"z"`
	Phase []float64 `json:"phase"`
}

// Size returns the number of candidates, or 0 if any axis is empty. The
// product saturates at math.MaxInt instead of wrapping.
func (g Grid) Size() int {
	n := 1
	for _, l := range [...]int{len(g.X), len(g.Y), len(g.Z), len(g.Phase)} {
		if l == 0 {
			return 0
		}
		if n > math.MaxInt/l {
			return math.MaxInt
		}
		n *= l
	}
	return n
}

// At decodes candidate index i.
func (g Grid) At(i int) Params {
	np, nz, ny := len(g.Phase), len(g.Z), len(g.Y)
	ip := i % np
	i /= np
	iz := i % nz
	i /= nz
	iy := i % ny
	ix := i / ny
	return Params{X: g.X[ix], Y: g.Y[iy], Z: g.Z[iz], Phase: g.Phase[ip]}
}

// Candidates returns a lazy sequence of (index, candidate) pairs. Nothing is
// materialized, and the sequence may be ranged over any number of times.
func (g Grid) Candidates() iter.Seq2[int, Params] {
	return func(yield func(int, Params) bool) {
		i := 0
		for _, x := range g.X {
			for _, y := range g.Y {
				for _, z := range g.Z {
					for _, ph := range g.Phase {
						if !yield(i, Params{X: x, Y: y, Z: z, Phase: ph}) {
							return
						}
						i++
					}
				}
			}
		}
	}
}

// Validate checks that every axis is non-empty and finite and that the
// candidate count fits in an int.
func (g Grid) Validate() error {
	axes := []struct {
		name string
		vals []float64
	}{
		{"x", g.X}, {"y", g.Y}, {"z", g.Z}, {"phase", g.Phase},
	}
	for _, a := range axes {
		if len(a.vals) == 0 {
			return fmt.Errorf("%w: grid axis %s is empty", ErrInvalidConfig, a.name)
		}
		for _, v := range a.vals {
			if !finite(v) {
				return fmt.Errorf("%w: grid axis %s contains %g", ErrInvalidConfig, a.name, v)
			}
		}
	}
	if g.Size() == math.MaxInt {
		return fmt.Errorf("%w: grid of %d×%d×%d×%d candidates is too large", ErrInvalidConfig,
			len(g.X), len(g.Y), len(g.Z), len(g.Phase))
	}
	return nil
}

// arangeLen is the number of values Arange(start, stop, step) returns, as a
// float so that absurd ranges can be detected before allocating.
func arangeLen(start, stop, step float64) float64 {
	if step == 0 {
		return 0
	}
	n := (stop - start) / step
	if !(n > 0) {
		return 0
	}
	return math.Ceil(n)
}

// Arange returns start, start+step, ... up to but excluding stop.
func Arange(start, stop, step float64) []float64 {
	nf := arangeLen(start, stop, step)
	if nf == 0 || nf > math.MaxInt32 {
		return nil
	}
	n := int(nf)
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// PhaseAxis returns n evenly spaced phases covering [0, 2π).
func PhaseAxis(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = 2 * math.Pi * float64(i) / float64(n)
	}
	return out
}

// AxisSpec describes one grid axis as a half-open range.
type AxisSpec struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step"`
}

// GridSpec describes a grid by ranges instead of explicit values.
type GridSpec struct {
	X      AxisSpec `json:"x"`
	Y      AxisSpec `json:"y"`
	Z      AxisSpec `json:"z"`
	Phases int      `json:"phases"`
}

// Size returns the number of candidates Grid would produce, saturating at
// math.MaxInt. It does not allocate.
func (s GridSpec) Size() int {
	n := float64(s.Phases)
	for _, a := range [...]AxisSpec{s.X, s.Y, s.Z} {
		n *= arangeLen(a.Start, a.Stop, a.Step)
	}
	switch {
	case !(n > 0):
		return 0
	case n >= math.MaxInt:
		return math.MaxInt
	}
	return int(n)
}

// Grid expands s into explicit axes.
func (s GridSpec) Grid() Grid {
	return Grid{
		X:     Arange(s.X.Start, s.X.Stop, s.X.Step),
		Y:     Arange(s.Y.Start, s.Y.Stop, s.Y.Step),
		Z:     Arange(s.Z.Start, s.Z.Stop, s.Z.Step),
		Phase: PhaseAxis(s.Phases),
	}
}
