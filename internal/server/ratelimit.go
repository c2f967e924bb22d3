package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docrag/internal/logging"
)

const (
	// defaultRateLimit is the per-IP request rate (requests/second) when none is configured.
	defaultRateLimit = 10
	// defaultRateBurst is the per-IP burst when none is configured.
	defaultRateBurst = 20
	// limiterIdleTTL is how long an IP may stay silent before its bucket is dropped.
	limiterIdleTTL = 5 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket. Search requests each cost one
// embedding call, so the limiter guards the embedding backend as much as
// the server.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	log      *slog.Logger
	now      func() time.Time

	// onReject is called for every rejected request. Optional.
	onReject func()
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine.
// The goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
		now:      time.Now,
	}

	stopCh := make(chan struct{})
	var once sync.Once
	go rl.evictLoop(stopCh)

	return rl, func() { once.Do(func() { close(stopCh) }) }
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict drops buckets idle for longer than limiterIdleTTL and returns how
// many remain.
func (rl *rateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
	return len(rl.limiters)
}

// middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			if rl.onReject != nil {
				rl.onReject()
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
