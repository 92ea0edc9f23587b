package api

import (
	"math"
	"net/http"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/httputil"
)

type dispersionResponse struct {
	Branch string  `json:"branch"`
	Omega  float64 `json:"omega"`
	Period float64 `json:"period_s"`
}

// dispersionHandler evaluates the dispersion relation. l and f are optional;
// their presence selects the branch.
func dispersionHandler(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.RequiredFloats(r, "n", "k", "m")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	l, hasL, err := httputil.FloatParam(r, "l")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	f, hasF, err := httputil.FloatParam(r, "f")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	branch := gravitywave.BranchFor(hasL, hasF)
	om := branch.Omega(req[0], req[1], l, req[2], f)
	if math.IsNaN(om) || math.IsInf(om, 0) {
		httputil.WriteError(w, http.StatusUnprocessableEntity, "no real frequency for these wavenumbers",
			map[string]any{"branch": branch.String()})
		return
	}

	resp := dispersionResponse{Branch: branch.String(), Omega: om}
	if om > 0 {
		resp.Period = 2 * math.Pi / om
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type topographicResponse struct {
	M                  float64 `json:"m"`
	VerticalWavelength float64 `json:"vertical_wavelength_m"`
}

// topographicHandler returns the vertical wavenumber forced by flow U over
// topography of horizontal wavenumber k. f defaults to 0.
func topographicHandler(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.RequiredFloats(r, "k", "n", "u")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	f, _, err := httputil.FloatParam(r, "f")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	m := gravitywave.TopographicM(req[0], req[1], req[2], f)
	if math.IsNaN(m) || math.IsInf(m, 0) || m == 0 {
		httputil.WriteError(w, http.StatusUnprocessableEntity,
			"forced response is evanescent or undefined (intrinsic frequency outside (|f|, N))", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, topographicResponse{M: m, VerticalWavelength: 2 * math.Pi / m})
}

// flowHandler characterizes stratified flow over an obstacle.
func flowHandler(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.RequiredFloats(r, "n", "u", "f", "h", "l")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p := gravitywave.FlowParams{N: req[0], U: req[1], F: req[2], Height: req[3], Width: req[4]}
	if p.N <= 0 || p.U <= 0 || p.F == 0 || p.Height <= 0 || p.Width <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "n, u, h and l must be positive and f non-zero", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, gravitywave.FlowScales(p))
}
