package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/liqun1981/lee-wave-analysis/internal/auth"
	"github.com/liqun1981/lee-wave-analysis/internal/health"
	"github.com/liqun1981/lee-wave-analysis/internal/metrics"
	"github.com/liqun1981/lee-wave-analysis/internal/results"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
)

// Options configures the search endpoints.
type Options struct {
	Engine  *search.Engine
	Archive *results.Archive // nil disables archiving and the runs endpoints

	MaxConcurrentPerIP int
	MaxConcurrentTotal int
	MaxGridSize        int // 0 means unlimited
	CacheSize          int
	CacheTTL           time.Duration
	SearchTimeout      time.Duration
	TrustProxy         bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, opts Options) *Server {
	handler := newHandler(logger, authCfg, opts)

	writeTimeout := opts.SearchTimeout + 10*time.Second
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(logger *slog.Logger, authCfg auth.Config, opts Options) http.Handler {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 2 * time.Minute
	}

	svc := &searchService{
		engine:      opts.Engine,
		archive:     opts.Archive,
		cache:       expirable.NewLRU[string, cachedSearch](opts.CacheSize, nil, opts.CacheTTL),
		limiter:     newSearchLimiter(opts.MaxConcurrentPerIP, opts.MaxConcurrentTotal),
		maxGridSize: opts.MaxGridSize,
		timeout:     opts.SearchTimeout,
		trustProxy:  opts.TrustProxy,
		logger:      logger,
	}

	var checks []health.Checker
	if opts.Archive != nil {
		checks = append(checks, opts.Archive)
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(checks...))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/dispersion", dispersionHandler)
	mux.HandleFunc("GET /api/v1/topographic", topographicHandler)
	mux.HandleFunc("GET /api/v1/flow", flowHandler)
	mux.HandleFunc("POST /api/v1/search", svc.handleSearch)
	mux.HandleFunc("GET /api/v1/runs", svc.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", svc.handleGetRun)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			switch {
			case probePath(r.URL.Path):
				level = slog.LevelDebug
			case sr.statusCode >= http.StatusInternalServerError:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
