// Package server is the HTTP surface of the prediction service
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/metrics"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/predictor"
)

// maxBatch bounds one batch request
const maxBatch = 50

// Predictor is the part of the prediction core the server needs
type Predictor interface {
	Predict(ctx context.Context, req predictor.Request) *podds.PredictionRecord
	PredictBatch(ctx context.Context, reqs []predictor.Request) []*podds.PredictionRecord
}

// Server routes HTTP requests to the predictor, the cache and the metrics registry
type Server struct {
	addr      string
	predictor Predictor
	cache     *cache.MatchCache
	metrics   *metrics.Metrics
	deadline  time.Duration
	router    chi.Router
}

// New builds the server and its routes. cache and metrics may be nil
func New(addr string, p Predictor, c *cache.MatchCache, m *metrics.Metrics, deadline time.Duration) *Server {
	s := &Server{addr: addr, predictor: p, cache: c, metrics: m, deadline: deadline}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if deadline > 0 {
		// room for the feature build plus the ensemble
		r.Use(middleware.Timeout(2 * deadline))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/predict", s.handlePredict)
	r.Post("/predict/batch", s.handlePredictBatch)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Delete("/cache", s.handleCacheInvalidate)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	s.router = r
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	logger.Highlight("Starting prediction server on", s.addr)
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigChan:
		logger.Info("Received signal:", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

/////////////////////////////////////////////////////////////////////////
////// Handlers
/////////////////////////////////////////////////////////////////////////

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePredict serves GET /predict?home=&away=&fixture=&league=&season=&strategy=
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec := s.predictor.Predict(r.Context(), req)
	status := http.StatusOK
	if rec.Status == podds.PredictionUnavailable {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, rec)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []predictor.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatch {
		writeError(w, http.StatusBadRequest, errors.New("batch must hold between 1 and 50 requests"))
		return
	}
	for i := range reqs {
		if reqs[i].Strategy != "" {
			st, err := config.ParseStrategy(string(reqs[i].Strategy))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			reqs[i].Strategy = st
		}
	}
	writeJSON(w, http.StatusOK, s.predictor.PredictBatch(r.Context(), reqs))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusNotFound, errors.New("cache disabled"))
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

// handleCacheInvalidate serves DELETE /cache?pattern=. An empty pattern clears everything
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusNotFound, errors.New("cache disabled"))
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	n, err := s.cache.Invalidate(r.Context(), pattern)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	logger.Info("Cache invalidated", pattern, n)
	writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "removed": n})
}

/////////////////////////////////////////////////////////////////////////
////// Helpers
/////////////////////////////////////////////////////////////////////////

func parseRequest(r *http.Request) (predictor.Request, error) {
	q := r.URL.Query()
	var req predictor.Request
	var err error
	ints := []struct {
		name     string
		dst      *int
		required bool
	}{
		{"home", &req.HomeID, true},
		{"away", &req.AwayID, true},
		{"league", &req.League.ID, true},
		{"season", &req.League.Season, true},
		{"fixture", &req.FixtureID, false},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			if p.required {
				return req, errors.New("missing query parameter " + p.name)
			}
			continue
		}
		if *p.dst, err = strconv.Atoi(v); err != nil {
			return req, errors.New("query parameter " + p.name + " must be an integer")
		}
	}
	if st := q.Get("strategy"); st != "" {
		if req.Strategy, err = config.ParseStrategy(st); err != nil {
			return req, err
		}
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
