// Package gravitywave evaluates linear internal gravity wave solutions of the
// Boussinesq equations on a uniformly stratified, optionally rotating
// background.
//
// All functions are pure. Invalid inputs are not trapped: a negative radicand
// in the dispersion relation yields NaN, and callers are expected to check
// the result with math.IsNaN.
package gravitywave

import (
	"fmt"
	"math"
)

// Branch selects which form of the dispersion relation applies.
type Branch uint8

const (
	NonRotating2D Branch = iota // k, m only
	NonRotating3D               // k, l, m
	Rotating2D                  // k, m and f
	Rotating3D                  // k, l, m and f
)

// BranchFor returns the branch matching the set of supplied quantities.
func BranchFor(hasL, hasF bool) Branch {
	switch {
	case hasL && hasF:
		return Rotating3D
	case hasF:
		return Rotating2D
	case hasL:
		return NonRotating3D
	default:
		return NonRotating2D
	}
}

func (b Branch) String() string {
	switch b {
	case NonRotating2D:
		return "non_rotating_2d"
	case NonRotating3D:
		return "non_rotating_3d"
	case Rotating2D:
		return "rotating_2d"
	case Rotating3D:
		return "rotating_3d"
	default:
		return fmt.Sprintf("branch(%d)", uint8(b))
	}
}

// Omega returns the intrinsic frequency (rad/s) satisfying the dispersion
// relation for this branch. Arguments the branch does not use are ignored.
//
// The result is the non-negative root. The direction of propagation is carried
// by the signs of k, l and m, so flipping the sign of any wavenumber leaves
// omega unchanged.
func (b Branch) Omega(N, k, l, m, f float64) float64 {
	N2 := N * N
	k2 := k * k
	m2 := m * m

	switch b {
	case NonRotating2D:
		return math.Sqrt(N2 * k2 / (k2 + m2))
	case NonRotating3D:
		l2 := l * l
		return math.Sqrt(N2 * (k2 + l2) / (k2 + l2 + m2))
	case Rotating2D:
		f2 := f * f
		return math.Sqrt((f2*m2 + N2*k2) / (k2 + m2))
	case Rotating3D:
		f2 := f * f
		l2 := l * l
		return math.Sqrt((f2*m2 + N2*(k2+l2)) / (k2 + l2 + m2))
	default:
		return math.NaN()
	}
}

// Omega evaluates the full rotating three dimensional dispersion relation.
// With l = 0 and/or f = 0 the result is identical to the reduced branches.
func Omega(N, k, l, m, f float64) float64 {
	return Rotating3D.Omega(N, k, l, m, f)
}

// TopographicM returns the vertical wavenumber of a wave forced by flow U over
// topography with horizontal wavenumber k:
//
//	m = sqrt((k²N² − U²k⁴) / (U²k² − f²))
//
// NaN means no freely propagating topographic wave exists at this forcing,
// either because U²k² = f² or because the radicand is negative.
func TopographicM(k, N, U, f float64) float64 {
	k2 := k * k
	N2 := N * N
	U2 := U * U
	f2 := f * f

	den := U2*k2 - f2
	if den == 0 {
		return math.NaN()
	}
	return math.Sqrt((k2*N2 - U2*k2*k2) / den)
}
