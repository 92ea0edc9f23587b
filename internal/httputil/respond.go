package httputil

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} plus any extra fields.
func WriteError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, status, body)
}

// FloatParam parses query parameter name as a finite float. ok is false when
// the parameter is absent.
func FloatParam(r *http.Request, name string) (v float64, ok bool, err error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, true, fmt.Errorf("parameter %s: %q is not a finite number", name, s)
	}
	return v, true, nil
}

// RequiredFloats parses each named parameter, failing on the first that is
// absent or malformed.
func RequiredFloats(r *http.Request, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok, err := FloatParam(r, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("parameter %s is required", name)
		}
		out[i] = v
	}
	return out, nil
}

// IntParam parses query parameter name, returning def when absent.
func IntParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %q is not an integer", name, s)
	}
	return v, nil
}
