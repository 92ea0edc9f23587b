package gravitywave

import (
	"math"
	"math/cmplx"
)

// Point is a space-time position. Z is positive upward, so depths below the
// surface are negative.
type Point struct {
	X, Y, Z float64 // m
	T       float64 // s
}

// Background holds the stratification and rotation the wave propagates in.
type Background struct {
	N float64 // buoyancy frequency, s⁻¹
	F float64 // Coriolis parameter, s⁻¹
}

// Wave is a single monochromatic plane wave. Phi0 is the (complex) pressure
// amplitude; every field shares the phase
//
//	θ = K·x + L·y + M·z − (Omega + K·MeanFlow)·t + Phase0
//
// and differs only in its polarization amplitude.
type Wave struct {
	K, L, M  float64 // wavenumbers, rad/m
	Omega    float64 // intrinsic frequency, rad/s
	N, F     float64 // background, s⁻¹
	MeanFlow float64 // uniform flow along x, m/s
	Phase0   float64 // rad
	Phi0     complex128
}

// Amplitudes holds the complex polarization amplitudes of a wave.
type Amplitudes struct {
	P, U, V, W, B complex128
}

// Magnitudes holds the absolute values of the velocity and buoyancy
// amplitudes.
type Magnitudes struct {
	U0, V0, W0, B0 float64
}

// Phase returns θ at p.
func (w Wave) Phase(p Point) float64 {
	return w.K*p.X + w.L*p.Y + w.M*p.Z - (w.Omega+w.K*w.MeanFlow)*p.T + w.Phase0
}

// field is Re(amp·e^{iθ}), the evaluation primitive shared by every quantity.
func (w Wave) field(amp complex128, p Point) float64 {
	return real(amp * cmplx.Exp(complex(0, w.Phase(p))))
}

// Amplitudes returns the polarization amplitudes derived from Phi0.
func (w Wave) Amplitudes() Amplitudes {
	return Amplitudes{
		P: w.Phi0,
		U: w.uAmplitude(),
		V: w.vAmplitude(),
		W: w.wAmplitude(),
		B: w.bAmplitude(),
	}
}

// wAmplitude is φ0·(−mω)/(N²−ω²). A real φ0 is kept on the real axis so the
// closed form is reproduced without complex rounding.
func (w Wave) wAmplitude() complex128 {
	N2 := w.N * w.N
	om2 := w.Omega * w.Omega
	if imag(w.Phi0) == 0 {
		return complex(-real(w.Phi0)*w.M*w.Omega/(N2-om2), 0)
	}
	return w.Phi0 * complex(-w.M*w.Omega/(N2-om2), 0)
}

// bAmplitude is φ0·i·m·N²/(N²−ω²).
func (w Wave) bAmplitude() complex128 {
	N2 := w.N * w.N
	om2 := w.Omega * w.Omega
	if imag(w.Phi0) == 0 {
		return complex(0, real(w.Phi0)*w.M*N2/(N2-om2))
	}
	return w.Phi0 * complex(0, w.M*N2/(N2-om2))
}

// uAmplitude is φ0·(kω + i·l·f)/(ω²−f²).
func (w Wave) uAmplitude() complex128 {
	d := w.Omega*w.Omega - w.F*w.F
	if imag(w.Phi0) == 0 {
		p := real(w.Phi0)
		return complex(p*w.K*w.Omega/d, p*w.L*w.F/d)
	}
	return w.Phi0 * complex(w.K*w.Omega/d, w.L*w.F/d)
}

// vAmplitude is φ0·(lω − i·k·f)/(ω²−f²).
func (w Wave) vAmplitude() complex128 {
	d := w.Omega*w.Omega - w.F*w.F
	if imag(w.Phi0) == 0 {
		p := real(w.Phi0)
		return complex(p*w.L*w.Omega/d, -p*w.K*w.F/d)
	}
	return w.Phi0 * complex(w.L*w.Omega/d, -w.K*w.F/d)
}

// Pressure returns the pressure perturbation at p.
func (w Wave) Pressure(p Point) float64 {
	return w.field(w.Phi0, p)
}

// Buoyancy returns the buoyancy perturbation (m/s²) at p.
func (w Wave) Buoyancy(p Point) float64 {
	return w.field(w.bAmplitude(), p)
}

// VelocityU returns the x velocity perturbation (m/s) at p.
func (w Wave) VelocityU(p Point) float64 {
	return w.field(w.uAmplitude(), p)
}

// VelocityV returns the y velocity perturbation (m/s) at p.
func (w Wave) VelocityV(p Point) float64 {
	return w.field(w.vAmplitude(), p)
}

// VelocityW returns the vertical velocity perturbation (m/s) at p.
func (w Wave) VelocityW(p Point) float64 {
	return w.field(w.wAmplitude(), p)
}

// Fields evaluates u, v, w and b at p with a single complex exponential.
func (w Wave) Fields(p Point) (u, v, wv, b float64) {
	e := cmplx.Exp(complex(0, w.Phase(p)))
	u = real(w.uAmplitude() * e)
	v = real(w.vAmplitude() * e)
	wv = real(w.wAmplitude() * e)
	b = real(w.bAmplitude() * e)
	return u, v, wv, b
}

// Magnitudes returns |u|, |v|, |w| and |b| amplitudes. They do not depend on
// Phase0.
func (w Wave) Magnitudes() Magnitudes {
	return Magnitudes{
		U0: cmplx.Abs(w.uAmplitude()),
		V0: cmplx.Abs(w.vAmplitude()),
		W0: cmplx.Abs(w.wAmplitude()),
		B0: cmplx.Abs(w.bAmplitude()),
	}
}

// AmplitudeMagnitudes is the free-function form of Wave.Magnitudes.
func AmplitudeMagnitudes(phi0, k, l, m, omega, N, f float64) Magnitudes {
	return Wave{K: k, L: l, M: m, Omega: omega, N: N, F: f, Phi0: complex(phi0, 0)}.Magnitudes()
}

// Valid reports whether the wave's frequency and amplitude are finite.
func (w Wave) Valid() bool {
	return !math.IsNaN(w.Omega) && !math.IsInf(w.Omega, 0) && !cmplx.IsNaN(w.Phi0) && !cmplx.IsInf(w.Phi0)
}
