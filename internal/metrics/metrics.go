// Package metrics turns pipeline events into Prometheus metrics. The same
// collectors back the server's /metrics endpoint and the textfile written
// at the end of a batch `docrag ingest` for node_exporter's textfile
// collector.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/rag"
)

const namespace = "docrag"

// Query outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Pipeline holds the ingestion and retrieval collectors.
type Pipeline struct {
	filesTotal        *prometheus.CounterVec
	documentsLoaded   prometheus.Gauge
	chunksCreated     prometheus.Gauge
	collectionRecords prometheus.Gauge
	phaseDuration     *prometheus.HistogramVec
	lastIndexTime     prometheus.Gauge
	queriesTotal      *prometheus.CounterVec
	queryDuration     prometheus.Histogram
}

// NewPipeline registers the pipeline collectors against reg. Pass a fresh
// prometheus.NewRegistry() in tests to keep them hermetic.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files seen by the loader, partitioned by outcome: loaded, empty, or failed.",
		}, []string{"outcome"}),

		documentsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_loaded",
			Help:      "Documents loaded by the most recent ingestion.",
		}),

		chunksCreated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_created",
			Help:      "Chunks produced by the most recent ingestion.",
		}),

		collectionRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "records",
			Help:      "Records stored by the most recent successful rebuild.",
		}),

		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of timed ingestion phases (embed, index).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"phase"}),

		lastIndexTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful rebuild.",
		}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Retrieval requests, partitioned by outcome: ok, not_found, or error.",
		}, []string{"outcome"}),

		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency of retrieval requests including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Observer returns an events.Observer that updates the collectors.
func (p *Pipeline) Observer() events.Observer {
	return p.observe
}

func (p *Pipeline) observe(ev events.Event) {
	switch ev.Phase {
	case events.PhaseFileLoaded:
		p.filesTotal.WithLabelValues("loaded").Inc()
	case events.PhaseFileSkipped:
		if ev.Err != nil {
			p.filesTotal.WithLabelValues("failed").Inc()
		} else {
			p.filesTotal.WithLabelValues("empty").Inc()
		}
	case events.PhaseLoadComplete:
		p.documentsLoaded.Set(float64(ev.Count))
	case events.PhaseChunkComplete:
		p.chunksCreated.Set(float64(ev.Count))
	case events.PhaseEmbedComplete:
		p.phaseDuration.WithLabelValues("embed").Observe(ev.Duration.Seconds())
	case events.PhaseIndexComplete:
		p.phaseDuration.WithLabelValues("index").Observe(ev.Duration.Seconds())
		p.collectionRecords.Set(float64(ev.Count))
		p.lastIndexTime.SetToCurrentTime()
	case events.PhaseQueryComplete:
		p.queriesTotal.WithLabelValues(QueryOutcome(ev.Err)).Inc()
		p.queryDuration.Observe(ev.Duration.Seconds())
	}
}

// QueryOutcome classifies a retrieval error into an outcome label.
func QueryOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, rag.ErrCollectionNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format. The file is written atomically.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write textfile %s: %w", path, err)
	}
	return nil
}
