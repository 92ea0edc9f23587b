package gravitywave

import "math"

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// criticalSteepness is the inverse Froude number above which flow over an
// obstacle is treated as strongly nonlinear.
const criticalSteepness = 0.4

// Coriolis returns the Coriolis parameter f = 2Ω·sin(lat) for a latitude in
// degrees. It is negative in the southern hemisphere.
func Coriolis(latDeg float64) float64 {
	return 2 * OmegaEarth * math.Sin(latDeg*math.Pi/180)
}

// FlowParams describes stratified flow over an isolated obstacle.
type FlowParams struct {
	N      float64 `json:"n"`      // buoyancy frequency, s⁻¹
	U      float64 `json:"u"`      // near-bottom flow speed, m/s
	F      float64 `json:"f"`      // Coriolis parameter, s⁻¹
	Height float64 `json:"height"` // obstacle height, m
	Width  float64 `json:"width"`  // obstacle width, m
}

// Scales are the nondimensional numbers and length/frequency scales that
// characterize wave generation by the flow.
type Scales struct {
	Rossby               float64 `json:"rossby"`                // U/(|f|·Width)
	Froude               float64 `json:"froude"`                // U/(N·Height)
	Steepness            float64 `json:"steepness"`             // 1/Froude
	LeeWavelength        float64 `json:"lee_wavelength_m"`      // 2πU/N, horizontal scale of waves with ω≈N
	TopographicFrequency float64 `json:"topographic_frequency"` // 2πU/Width, rad/s
	InertialPeriod       float64 `json:"inertial_period_s"`     // 2π/|f|
	BuoyancyPeriod       float64 `json:"buoyancy_period_s"`     // 2π/N
	CriticalHeight       float64 `json:"critical_height_m"`     // 2π·0.4·U/N
	Blocked              bool    `json:"blocked"`               // Height exceeds CriticalHeight
}

// FlowScales computes the flow characteristics for p. Zero denominators give
// ±Inf or NaN in the affected fields and are left for the caller to inspect.
func FlowScales(p FlowParams) Scales {
	absF := math.Abs(p.F)
	fr := p.U / (p.N * p.Height)
	s := Scales{
		Rossby:               p.U / (absF * p.Width),
		Froude:               fr,
		Steepness:            1 / fr,
		LeeWavelength:        2 * math.Pi * p.U / p.N,
		TopographicFrequency: 2 * math.Pi * p.U / p.Width,
		InertialPeriod:       2 * math.Pi / absF,
		BuoyancyPeriod:       2 * math.Pi / p.N,
		CriticalHeight:       2 * math.Pi * criticalSteepness * p.U / p.N,
	}
	s.Blocked = p.Height > s.CriticalHeight
	return s
}
