// Package server implements the HTTP server that exposes the retriever via
// a small JSON API. The server is started by the `docrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
)

// maxSearchBody caps the size of a /api/search request body.
const maxSearchBody = 64 << 10

// New constructs a Server around a retriever.
func New(retriever *rag.Retriever, cfg *Config) (*Server, error) {
	if retriever == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	return newServer(retriever, cfg), nil
}

func newServer(sr searcher, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 30 * time.Second
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 50
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		searcher: sr,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	rl.onReject = s.metrics.rateLimitedTotal.Inc
	s.stopRL = stop

	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/search", s.metrics.instrument("search", rl.middleware(protected(s.handleSearch))))
	mux.Handle("GET /api/runs/latest", s.metrics.instrument("runs_latest", protected(s.handleRunsLatest)))
	mux.Handle("GET /api/health", s.metrics.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.metrics.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler, including request logging.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	if s.cfg.APIKey == "" {
		s.log.Warn("server: authentication disabled, DOCRAG_API_KEY is not set")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("docrag server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("docrag server stopped")
		return nil
	}
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.NResults < 0 || req.NResults > s.cfg.MaxResults {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("n_results must be between 0 and %d", s.cfg.MaxResults))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SearchTimeout)
	defer cancel()

	passages, err := s.searcher.Retrieve(ctx, req.Query, req.NResults)
	if err != nil {
		status := searchStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", slog.Any("error", err))
		} else {
			log.Info("search rejected", slog.Any("error", err))
		}
		writeError(w, status, err.Error())
		return
	}

	resp := searchResponse{Results: make([]searchResult, len(passages))}
	for i, p := range passages {
		resp.Results[i] = searchResult{ID: p.ID, Text: p.Text, Source: p.Source, Similarity: p.Similarity}
	}
	s.metrics.searchResults.Observe(float64(len(passages)))
	writeJSON(w, http.StatusOK, resp)
}

// searchStatus maps a retrieval error to an HTTP status code.
func searchStatus(err error) int {
	switch {
	case errors.Is(err, rag.ErrCollectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleRunsLatest handles GET /api/runs/latest.
func (s *Server) handleRunsLatest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotFound, "run ledger disabled")
		return
	}
	run, err := s.cfg.Runs.Latest(r.Context())
	if errors.Is(err, store.ErrNoRuns) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("runs lookup failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not read run ledger")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
