// Package observation holds cleaned float profile data in the columnar form
// the parameter search consumes.
package observation

import (
	"errors"
	"fmt"
	"math"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid observation set")

// Sample is a single observation along the float track.
type Sample struct {
	Time  float64 // s
	Dist  float64 // along-track distance, m
	Depth float64 // m, negative below the surface
	U     float64 // m/s
	V     float64 // m/s
	W     float64 // m/s
	B     float64 // buoyancy perturbation, m/s²
}

// Set is an ordered sequence of samples stored column-wise, together with the
// background stratification and rotation. Sets are treated as read-only once
// handed to a search and may be shared between goroutines.
type Set struct {
	Time  []float64 `json:"time" msgpack:"time"`
	Dist  []float64 `json:"dist" msgpack:"dist"`
	Depth []float64 `json:"depth" msgpack:"depth"`
	U     []float64 `json:"u" msgpack:"u"`
	V     []float64 `json:"v" msgpack:"v"`
	W     []float64 `json:"w" msgpack:"w"`
	B     []float64 `json:"b" msgpack:"b"`

	N float64 `json:"n" msgpack:"n"` // buoyancy frequency, s⁻¹
	F float64 `json:"f" msgpack:"f"` // Coriolis parameter, s⁻¹
}

// FromSamples builds a Set from row-oriented samples.
func FromSamples(samples []Sample, N, F float64) *Set {
	s := &Set{N: N, F: F}
	for _, smp := range samples {
		s.Append(smp)
	}
	return s
}

// Append adds a sample to the end of the set.
func (s *Set) Append(smp Sample) {
	s.Time = append(s.Time, smp.Time)
	s.Dist = append(s.Dist, smp.Dist)
	s.Depth = append(s.Depth, smp.Depth)
	s.U = append(s.U, smp.U)
	s.V = append(s.V, smp.V)
	s.W = append(s.W, smp.W)
	s.B = append(s.B, smp.B)
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Time)
}

// Sample returns the i-th sample.
func (s *Set) Sample(i int) Sample {
	return Sample{
		Time:  s.Time[i],
		Dist:  s.Dist[i],
		Depth: s.Depth[i],
		U:     s.U[i],
		V:     s.V[i],
		W:     s.W[i],
		B:     s.B[i],
	}
}

// Point returns the model evaluation point of sample i. The float track is
// taken as the x axis, so y is always zero.
func (s *Set) Point(i int) gravitywave.Point {
	return gravitywave.Point{X: s.Dist[i], Y: 0, Z: s.Depth[i], T: s.Time[i]}
}

// Background returns the stratification and rotation of the set.
func (s *Set) Background() gravitywave.Background {
	return gravitywave.Background{N: s.N, F: s.F}
}

// MaxAbsW returns the peak observed vertical velocity magnitude.
func (s *Set) MaxAbsW() float64 {
	if len(s.W) == 0 {
		return 0
	}
	return math.Max(floats.Max(s.W), -floats.Min(s.W))
}

// Validate checks that all columns have the same nonzero length, every value
// is finite, and the background is physical.
func (s *Set) Validate() error {
	n := len(s.Time)
	if n == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalid)
	}

	cols := []struct {
		name string
		data []float64
	}{
		{"time", s.Time},
		{"dist", s.Dist},
		{"depth", s.Depth},
		{"u", s.U},
		{"v", s.V},
		{"w", s.W},
		{"b", s.B},
	}
	for _, c := range cols {
		if len(c.data) != n {
			return fmt.Errorf("%w: column %s has %d samples, want %d", ErrInvalid, c.name, len(c.data), n)
		}
		for i, v := range c.data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: column %s sample %d is not finite", ErrInvalid, c.name, i)
			}
		}
	}

	if math.IsNaN(s.N) || math.IsInf(s.N, 0) || s.N < 0 {
		return fmt.Errorf("%w: buoyancy frequency %g", ErrInvalid, s.N)
	}
	if math.IsNaN(s.F) || math.IsInf(s.F, 0) {
		return fmt.Errorf("%w: Coriolis parameter %g", ErrInvalid, s.F)
	}
	if s.MaxAbsW() == 0 {
		return fmt.Errorf("%w: vertical velocity is identically zero", ErrInvalid)
	}
	return nil
}
