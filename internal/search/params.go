package search

import (
	"fmt"
	"math"
)

// Params are the free parameters of a fitted wave: signed wavelengths along
// each axis (m) and the phase offset (rad).
type Params struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Z     float64 `json:"z" msgpack:"z"`
	Phase float64 `json:"phase" msgpack:"phase"`
}

// Wavenumbers returns k, l, m = 2π/X, 2π/Y, 2π/Z.
func (p Params) Wavenumbers() (k, l, m float64) {
	return 2 * math.Pi / p.X, 2 * math.Pi / p.Y, 2 * math.Pi / p.Z
}

// Degenerate reports whether any wavelength is zero, leaving its wavenumber
// undefined.
func (p Params) Degenerate() bool {
	return p.X == 0 || p.Y == 0 || p.Z == 0
}

// Finite reports whether every component is a finite number.
func (p Params) Finite() bool {
	for _, v := range [...]float64{p.X, p.Y, p.Z, p.Phase} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Normalized returns p with Phase wrapped into [0, 2π).
func (p Params) Normalized() Params {
	p.Phase = wrapPhase(p.Phase)
	return p
}

func (p Params) String() string {
	return fmt.Sprintf("X=%.1fm Y=%.1fm Z=%.1fm phase=%.3frad", p.X, p.Y, p.Z, p.Phase)
}

func wrapPhase(ph float64) float64 {
	ph = math.Mod(ph, 2*math.Pi)
	if ph < 0 {
		ph += 2 * math.Pi
	}
	if ph >= 2*math.Pi {
		ph = 0
	}
	return ph
}

// vector returns p as a slice in optimizer order.
func (p Params) vector() []float64 {
	return []float64{p.X, p.Y, p.Z, p.Phase}
}

func paramsFromVector(x []float64) Params {
	return Params{X: x[0], Y: x[1], Z: x[2], Phase: x[3]}
}
