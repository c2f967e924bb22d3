package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue returns the value of the first series of name whose labels
// include all of labels, and whether it was found.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue(), true
			}
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_RequestsCountedByHandlerAndCode(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t, &fakeSearcher{})

	postSearch(t, s.Handler(), `{"query":"x"}`)
	postSearch(t, s.Handler(), `{"query":""}`)

	for code, want := range map[string]float64{"200": 1, "400": 1} {
		got, ok := counterValue(t, reg, "docrag_http_requests_total",
			map[string]string{"method": "POST", "handler": "search", "code": code})
		if !ok || got != want {
			t.Errorf("requests_total{code=%s} = %v (found=%v), want %v", code, got, ok, want)
		}
	}
}

func Test_Metrics_RateLimitedCounter(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t, &fakeSearcher{}, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	for range 3 {
		postSearch(t, s.Handler(), `{"query":"x"}`)
	}

	got, ok := counterValue(t, reg, "docrag_http_rate_limited_total", nil)
	if !ok || got != 2 {
		t.Errorf("rate_limited_total = %v (found=%v), want 2", got, ok)
	}
}
