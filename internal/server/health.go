package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docrag/internal/logging"
)

// probeTimeout bounds each dependency probe during a readiness check.
const probeTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name is the label used in readiness responses (e.g. "ollama", "chromem").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	Name       string  `json:"name"`
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Probes run concurrently, each with
// its own timeout; the response is 200 when all succeed and 503 otherwise.
// Checks are reported in registration order.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Checks: make([]readyCheck, len(s.pingers))}
	errs := make([]error, len(s.pingers))

	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			errs[i] = p.Ping(probeCtx)
			resp.Checks[i] = readyCheck{
				Name:       p.Name(),
				OK:         errs[i] == nil,
				DurationMS: float64(time.Since(start).Microseconds()) / 1000,
			}
		})
	}
	wg.Wait()

	allOK := true
	for i, err := range errs {
		check := &resp.Checks[i]
		if err != nil {
			check.Error = err.Error()
			allOK = false
			log.Warn("readiness probe failed",
				slog.String("dependency", check.Name),
				slog.Any("error", err),
			)
		}
	}

	resp.Ready = allOK

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}
