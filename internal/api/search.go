package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/liqun1981/lee-wave-analysis/internal/httputil"
	"github.com/liqun1981/lee-wave-analysis/internal/metrics"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"github.com/liqun1981/lee-wave-analysis/internal/results"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
)

const maxSearchBody = 16 << 20

type searchRequest struct {
	Observations *observation.Set `json:"observations"`
	Config       search.Config    `json:"config"`
}

type searchResponse struct {
	Result *search.Result `json:"result"`
	RunID  string         `json:"run_id,omitempty"`
	Cached bool           `json:"cached"`
}

// cachedSearch is what the result cache stores per request digest.
type cachedSearch struct {
	result *search.Result
	runID  string
}

type searchService struct {
	engine      *search.Engine
	archive     *results.Archive
	cache       *expirable.LRU[string, cachedSearch]
	limiter     *searchLimiter
	maxGridSize int
	timeout     time.Duration
	trustProxy  bool
	logger      *slog.Logger
}

// requestDigest keys the result cache. Re-marshaling the decoded request
// makes the key independent of whitespace and field order in the body.
func requestDigest(req *searchRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *searchService) handleSearch(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, s.trustProxy)
	if !s.limiter.acquire(ip) {
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent searches", nil)
		return
	}
	defer s.limiter.release(ip)

	var req searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.Observations == nil {
		httputil.WriteError(w, http.StatusBadRequest, "observations are required", nil)
		return
	}
	if err := req.Observations.Validate(); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if req.Config.Strategy == search.StrategyGrid {
		size := req.Config.Grid.Size()
		if size == 0 && req.Config.GridSpec != nil {
			size = req.Config.GridSpec.Size()
		}
		if s.maxGridSize > 0 && size > s.maxGridSize {
			httputil.WriteError(w, http.StatusBadRequest, "grid exceeds the candidate budget",
				map[string]any{"grid_size": size, "max_grid_size": s.maxGridSize})
			return
		}
	}

	key, err := requestDigest(&req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "request is not serializable: "+err.Error(), nil)
		return
	}
	if hit, ok := s.cache.Get(key); ok {
		metrics.RecordCacheLookup(true)
		httputil.WriteJSON(w, http.StatusOK, searchResponse{Result: hit.result, RunID: hit.runID, Cached: true})
		return
	}
	metrics.RecordCacheLookup(false)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.engine.Run(ctx, req.Observations, req.Config)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	var runID string
	if s.archive != nil {
		rec, err := s.archive.Save(ctx, req.Config, req.Observations, res)
		if err != nil {
			s.logger.Error("archiving run failed", "component", "api", "error", err)
		} else {
			runID = rec.ID
		}
	}

	s.cache.Add(key, cachedSearch{result: res, runID: runID})
	httputil.WriteJSON(w, http.StatusOK, searchResponse{Result: res, RunID: runID})
}

func (s *searchService) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidConfig), errors.Is(err, observation.ErrInvalid):
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, search.ErrNonConvergence),
		errors.Is(err, search.ErrNoValidCandidate),
		errors.Is(err, search.ErrDegenerateCandidate),
		errors.Is(err, search.ErrUnphysicalDispersion):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, http.StatusServiceUnavailable, "search timed out",
			map[string]any{"timeout_s": s.timeout.Seconds()})
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		httputil.WriteError(w, http.StatusServiceUnavailable, "search cancelled", nil)
	default:
		s.logger.Error("search failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (s *searchService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "run archive is disabled", nil)
		return
	}
	limit, err := httputil.IntParam(r, "limit", 50)
	if err != nil || limit < 1 {
		httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
		return
	}
	recs, err := s.archive.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	if recs == nil {
		recs = []results.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"runs": recs})
}

func (s *searchService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "run archive is disabled", nil)
		return
	}
	run, err := s.archive.Load(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		s.logger.Error("loading run failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}
