package search

import (
	"fmt"
	"math"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
)

// NewModel builds the wave a candidate predicts for obs. The frequency comes
// from the rotating three dimensional dispersion relation and the pressure
// amplitude is pinned to the peak observed vertical velocity,
//
//	φ0 = max|W|·(N²−f²)·m / (ω·(k²+l²+m²))
//
// so that the model's |w| amplitude equals max|W| and amplitude is not a free
// parameter. With PolarizationNonRotating the returned wave has F = 0, which
// only affects its u and v amplitudes.
func NewModel(p Params, obs *observation.Set, pol Polarization) (gravitywave.Wave, error) {
	return newModel(p, obs.N, obs.F, obs.MaxAbsW(), pol)
}

// WaveFor builds the wave for p on bg whose |w| amplitude is maxW.
func WaveFor(p Params, bg gravitywave.Background, maxW float64, pol Polarization) (gravitywave.Wave, error) {
	return newModel(p, bg.N, bg.F, maxW, pol)
}

func newModel(p Params, N, f, maxW float64, pol Polarization) (gravitywave.Wave, error) {
	if p.Degenerate() {
		return gravitywave.Wave{}, fmt.Errorf("%w: %v", ErrDegenerateCandidate, p)
	}

	k, l, m := p.Wavenumbers()
	om := gravitywave.Rotating3D.Omega(N, k, l, m, f)
	phi0 := maxW * (N*N - f*f) * m / (om * (k*k + l*l + m*m))

	w := gravitywave.Wave{
		K:      k,
		L:      l,
		M:      m,
		Omega:  om,
		N:      N,
		Phase0: p.Phase,
		Phi0:   complex(phi0, 0),
	}
	if pol == PolarizationRotating {
		w.F = f
	}
	if !w.Valid() {
		return gravitywave.Wave{}, fmt.Errorf("%w: %v gives omega=%g phi0=%g", ErrUnphysicalDispersion, p, om, phi0)
	}
	return w, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
