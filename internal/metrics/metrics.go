package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leewave_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leewave_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leewave_searches_total",
			Help: "Parameter searches by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	searchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leewave_search_duration_seconds",
			Help:    "Parameter search duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"strategy"},
	)

	candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leewave_candidates_evaluated_total",
			Help: "Candidate parameter sets evaluated, by strategy.",
		},
		[]string{"strategy"},
	)

	sentinelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leewave_candidates_rejected_total",
			Help: "Candidates assigned the sentinel cost, by strategy and reason.",
		},
		[]string{"strategy", "reason"},
	)

	searchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leewave_search_cache_total",
			Help: "Search result cache lookups by result (hit or miss).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(searchesTotal)
	prometheus.MustRegister(searchDurationSeconds)
	prometheus.MustRegister(candidatesTotal)
	prometheus.MustRegister(sentinelsTotal)
	prometheus.MustRegister(searchCacheTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSearch counts one finished search and observes its duration.
func RecordSearch(strategy, outcome string, d time.Duration) {
	searchesTotal.WithLabelValues(strategy, outcome).Inc()
	searchDurationSeconds.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordCandidates adds evaluated and rejected candidate counts.
func RecordCandidates(strategy string, evaluated, degenerate, unphysical int) {
	candidatesTotal.WithLabelValues(strategy).Add(float64(evaluated))
	if degenerate > 0 {
		sentinelsTotal.WithLabelValues(strategy, "degenerate").Add(float64(degenerate))
	}
	if unphysical > 0 {
		sentinelsTotal.WithLabelValues(strategy, "unphysical").Add(float64(unphysical))
	}
}

// RecordCacheLookup counts a search cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		searchCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	searchCacheTotal.WithLabelValues("miss").Inc()
}

// knownRoutes are reported under their own path label.
var knownRoutes = map[string]bool{
	"/":                   true,
	"/healthz":            true,
	"/readyz":             true,
	"/metrics":            true,
	"/api/v1/dispersion":  true,
	"/api/v1/topographic": true,
	"/api/v1/flow":        true,
	"/api/v1/search":      true,
	"/api/v1/runs":        true,
}

const runsPrefix = "/api/v1/runs/"

// normalizeRoute maps a request path to a bounded set of labels so that run
// IDs and scanner traffic cannot blow up series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, runsPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return runsPrefix + "{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
