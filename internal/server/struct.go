package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// SearchTimeout bounds one /api/search request including the query
	// embedding call (default: 30s).
	SearchTimeout time.Duration
	// MaxResults is the largest n_results a client may request (default: 50).
	MaxResults int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Runs backs GET /api/runs/latest. If nil the route returns 404.
	Runs store.RunStore
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's HTTP collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// searcher is the interface handleSearch calls to resolve a query.
// *rag.Retriever satisfies it; tests inject a fake.
type searcher interface {
	Retrieve(ctx context.Context, query string, n int) ([]rag.Passage, error)
}

// Server is the HTTP server that exposes a Retriever.
type Server struct {
	// searcher resolves /api/search queries.
	searcher searcher
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the natural-language question. Passed to the retriever verbatim.
	Query string `json:"query"`
	// NResults is the number of passages wanted; zero uses the retriever default.
	NResults int `json:"n_results"`
}

// searchResult is one ranked passage.
type searchResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	Similarity float32 `json:"similarity"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Results are ordered by decreasing similarity.
	Results []searchResult `json:"results"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
