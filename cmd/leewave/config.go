package main

import (
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/liqun1981/lee-wave-analysis/internal/auth"
)

// searchEnv holds engine defaults shared by every command.
type searchEnv struct {
	Workers       int
	BuoyancyScale float64 // 0 when unset; searches then require --scale
	MaxIterations int
}

type archiveEnv struct {
	Dir     string
	MaxRuns int
}

type serverEnv struct {
	Addr               string
	CacheSize          int
	MaxConcurrentPerIP int
	MaxGridSize        int
	TrustProxy         bool
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("LEEWAVE_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("LEEWAVE_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("LEEWAVE_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("LEEWAVE_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadSearchConfig(logger *slog.Logger) searchEnv {
	return searchEnv{
		Workers:       envInt(logger, "LEEWAVE_WORKERS", 0, 0),
		BuoyancyScale: envPositiveFloat(logger, "LEEWAVE_BUOYANCY_SCALE"),
		MaxIterations: envInt(logger, "LEEWAVE_MAX_ITERATIONS", 200, 1),
	}
}

func loadArchiveConfig(logger *slog.Logger) archiveEnv {
	dir := os.Getenv("LEEWAVE_ARCHIVE_DIR")
	if dir == "" {
		dir = "data/runs"
	}
	return archiveEnv{
		Dir:     dir,
		MaxRuns: envInt(logger, "LEEWAVE_ARCHIVE_MAX_RUNS", 100, 1),
	}
}

func loadServerConfig(logger *slog.Logger) serverEnv {
	addr := os.Getenv("LEEWAVE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	cfg := serverEnv{
		Addr:               addr,
		CacheSize:          envInt(logger, "LEEWAVE_RESULT_CACHE_SIZE", 128, 1),
		MaxConcurrentPerIP: envInt(logger, "LEEWAVE_MAX_CONCURRENT_PER_IP", 2, 1),
		MaxGridSize:        envInt(logger, "LEEWAVE_MAX_GRID_SIZE", 2_000_000, 0),
	}

	if v := os.Getenv("LEEWAVE_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid LEEWAVE_TRUST_PROXY value, using default", "value", v, "default", false)
		} else {
			cfg.TrustProxy = b
		}
	}
	return cfg
}

// envInt reads an integer variable, warning and returning def when it is
// malformed or below floor.
func envInt(logger *slog.Logger, name string, def, floor int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envPositiveFloat reads a positive float variable, returning 0 when it is
// unset or invalid.
func envPositiveFloat(logger *slog.Logger, name string) float64 {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) || f > 1e300 {
		logger.Warn("invalid "+name+" value, ignoring", "value", v)
		return 0
	}
	return f
}
