package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/rag"
)

func newTestPipeline(t *testing.T) (*Pipeline, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPipeline(reg), reg
}

// findMetric returns the metric in family name whose labels include all of
// labels, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
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
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m
			}
		}
	}
	return nil
}

func Test_Metrics_FileOutcomes(t *testing.T) {
	t.Parallel()
	p, reg := newTestPipeline(t)
	obs := p.Observer()

	obs.Emit(events.Event{Phase: events.PhaseFileLoaded, Path: "a.txt"})
	obs.Emit(events.Event{Phase: events.PhaseFileLoaded, Path: "b.md"})
	obs.Emit(events.Event{Phase: events.PhaseFileSkipped, Path: "blank.txt"})
	obs.Emit(events.Event{Phase: events.PhaseFileSkipped, Path: "bad.pdf", Err: errors.New("corrupt")})

	for outcome, want := range map[string]float64{"loaded": 2, "empty": 1, "failed": 1} {
		m := findMetric(t, reg, "docrag_ingest_files_total", map[string]string{"outcome": outcome})
		if m == nil {
			t.Errorf("docrag_ingest_files_total{outcome=%q} not found", outcome)
			continue
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("files_total{outcome=%q} = %v, want %v", outcome, got, want)
		}
	}
}

func Test_Metrics_IndexGauges(t *testing.T) {
	t.Parallel()
	p, reg := newTestPipeline(t)
	obs := p.Observer()

	obs.Emit(events.Event{Phase: events.PhaseLoadComplete, Count: 4})
	obs.Emit(events.Event{Phase: events.PhaseChunkComplete, Count: 12})
	obs.Emit(events.Event{Phase: events.PhaseEmbedComplete, Count: 12, Duration: 2 * time.Second})
	obs.Emit(events.Event{Phase: events.PhaseIndexComplete, Count: 12, Duration: 3 * time.Second})

	gauges := map[string]float64{
		"docrag_ingest_documents_loaded": 4,
		"docrag_ingest_chunks_created":   12,
		"docrag_collection_records":      12,
	}
	for name, want := range gauges {
		m := findMetric(t, reg, name, nil)
		if m == nil {
			t.Errorf("%s not found", name)
			continue
		}
		if got := m.GetGauge().GetValue(); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	if m := findMetric(t, reg, "docrag_ingest_last_success_timestamp_seconds", nil); m == nil || m.GetGauge().GetValue() == 0 {
		t.Error("last success timestamp not set")
	}
	m := findMetric(t, reg, "docrag_ingest_phase_duration_seconds", map[string]string{"phase": "embed"})
	if m == nil || m.GetHistogram().GetSampleCount() != 1 {
		t.Error("embed phase duration not observed")
	}
}

func Test_Metrics_QueryOutcomes(t *testing.T) {
	t.Parallel()
	p, reg := newTestPipeline(t)
	obs := p.Observer()

	obs.Emit(events.Event{Phase: events.PhaseQueryComplete, Count: 3})
	obs.Emit(events.Event{Phase: events.PhaseQueryComplete, Err: fmt.Errorf("wrap: %w", rag.ErrCollectionNotFound)})
	obs.Emit(events.Event{Phase: events.PhaseQueryComplete, Err: rag.ErrEmbedding})

	for _, outcome := range []string{OutcomeOK, OutcomeNotFound, OutcomeError} {
		m := findMetric(t, reg, "docrag_query_requests_total", map[string]string{"outcome": outcome})
		if m == nil || m.GetCounter().GetValue() != 1 {
			t.Errorf("query_requests_total{outcome=%q} != 1", outcome)
		}
	}
	if m := findMetric(t, reg, "docrag_query_duration_seconds", nil); m == nil || m.GetHistogram().GetSampleCount() != 3 {
		t.Error("query duration should have 3 samples")
	}
}

func Test_Metrics_WriteTextfile(t *testing.T) {
	t.Parallel()
	p, reg := newTestPipeline(t)
	p.Observer().Emit(events.Event{Phase: events.PhaseChunkComplete, Count: 7})

	path := filepath.Join(t.TempDir(), "docrag.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "docrag_ingest_chunks_created 7") {
		t.Errorf("textfile missing chunks gauge:\n%s", data)
	}
}
