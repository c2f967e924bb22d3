package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds the Prometheus collectors owned by the HTTP server.
// Retrieval outcomes are counted by metrics.Pipeline through the retriever's
// observer; these cover the transport only.
type serverMetrics struct {
	// httpRequestsTotal counts requests by method, logical handler and status.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records request latency by method and handler.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// searchResults records how many passages each successful search returned.
	searchResults prometheus.Histogram
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),

		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "search",
			Name:      "results",
			Help:      "Passages returned per successful /api/search request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
	}
}

// instrument wraps next so each request is counted and timed under the
// given handler label.
func (m *serverMetrics) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
