package health

import (
	"context"
	"net/http"
	"time"
)

// Checker is a dependency that must be reachable for the service to be ready.
type Checker interface {
	Ping(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns a handler that reports 200 "ready\n" when every checker
// answers, and 503 otherwise. Nil checkers are skipped.
func Readyz(checks ...Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain")
		for _, c := range checks {
			if c == nil {
				continue
			}
			if err := c.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready: " + err.Error() + "\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
