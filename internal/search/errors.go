package search

import "errors"

var (
	// ErrDegenerateCandidate marks a candidate with a zero wavelength.
	ErrDegenerateCandidate = errors.New("degenerate candidate: zero wavelength")

	// ErrUnphysicalDispersion marks a candidate whose frequency or reference
	// amplitude is not a finite real number.
	ErrUnphysicalDispersion = errors.New("unphysical dispersion: no real frequency")

	// ErrNonConvergence is returned when the least-squares optimizer exhausts
	// its iteration budget.
	ErrNonConvergence = errors.New("optimizer did not converge")

	// ErrInvalidConfig is wrapped by configuration validation failures.
	ErrInvalidConfig = errors.New("invalid search configuration")
)
