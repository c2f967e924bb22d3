package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag/internal/config"
	"github.com/54b3r/docrag/internal/embedder"
	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/loader"
	"github.com/54b3r/docrag/internal/metrics"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/server"
	"github.com/54b3r/docrag/internal/store"
)

// storeBackend is a rag.VectorStore that can also report its reachability.
type storeBackend interface {
	rag.VectorStore
	Ping(ctx context.Context) error
}

// components holds the wired dependencies of one command invocation.
type components struct {
	settings *config.Settings
	log      *slog.Logger

	embedder   rag.Embedder
	dimensions int
	store      storeBackend
	runs       *store.SQLiteStore

	registry *prometheus.Registry
	metrics  *metrics.Pipeline
}

// open builds the embedder, vector store, run ledger and metrics registry
// from the settings. The caller must Close the result.
func (a *app) open() (*components, error) {
	s := a.settings
	if err := s.EnsureDirs(); err != nil {
		return nil, err
	}
	if err := embedder.Validate(s.Embedding, a.log); err != nil {
		return nil, err
	}

	emb, err := embedder.New(s.Embedding)
	if err != nil {
		return nil, err
	}
	dims := s.Embedding.Dimensions
	if dims == 0 {
		dims = embedder.DefaultDimensions(s.Embedding)
	}

	c := &components{
		settings:   s,
		log:        a.log,
		embedder:   emb,
		dimensions: dims,
		registry:   prometheus.NewRegistry(),
	}
	c.metrics = metrics.NewPipeline(c.registry)

	switch s.Store.Backend {
	case "qdrant":
		c.store, err = rag.NewQdrantStore(rag.QdrantConfig{
			Host:       s.Qdrant.Host,
			Port:       s.Qdrant.Port,
			VectorSize: uint64(max(dims, 0)), //nolint:gosec // non-negative
			APIKey:     s.Qdrant.APIKey,
			UseTLS:     s.Qdrant.TLS,
		}, s.Store.Collection)
	default:
		c.store, err = rag.NewChromemStore(s.Store.Dir, s.Store.Compress)
	}
	if err != nil {
		return nil, err
	}
	a.log.Debug("vector store ready",
		slog.String("backend", s.Store.Backend),
		slog.String("collection", s.Store.Collection),
	)

	if s.RunsEnabled() {
		runs, err := store.Open(s.RunsDB)
		if err != nil {
			a.log.Warn("runs: failed to open ledger, disabling", slog.String("path", s.RunsDB), slog.Any("error", err))
		} else {
			c.runs = runs
		}
	} else {
		a.log.Debug("runs: ledger disabled")
	}
	return c, nil
}

// Close releases the store and ledger.
func (c *components) Close() {
	if c.runs != nil {
		_ = c.runs.Close()
	}
	_ = c.store.Close()
}

// observer fans pipeline events out to the log and the metrics collectors.
func (c *components) observer() events.Observer {
	return events.Fanout(events.LogObserver(c.log), c.metrics.Observer())
}

// runStore returns the ledger as an interface, nil when disabled.
func (c *components) runStore() store.RunStore {
	if c.runs == nil {
		return nil
	}
	return c.runs
}

// pipeline builds the ingestion pipeline for dir.
func (c *components) pipeline(dir string) (*ingestion.Pipeline, error) {
	ix, err := rag.NewIndexer(c.embedder, c.store, rag.IndexerConfig{
		Collection: c.settings.Store.Collection,
		Dimensions: c.dimensions,
		Observer:   c.observer(),
		Logger:     c.log,
	})
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(ix, ingestion.Config{
		DocumentsDir: dir,
		Loader:       loader.Config{StripMarkdown: c.settings.Documents.StripMarkdown},
		ChunkSize:    c.settings.Documents.ChunkSize,
		ChunkOverlap: c.settings.Documents.ChunkOverlap,
		Observer:     c.observer(),
		Runs:         c.runStore(),
		Logger:       c.log,
	})
}

// retriever builds a retriever over the configured collection.
func (c *components) retriever() (*rag.Retriever, error) {
	return rag.NewRetriever(c.embedder, c.store, rag.RetrieverConfig{
		Collection:  c.settings.Store.Collection,
		Instruction: c.settings.Retrieval.QueryInstruction(),
		TopK:        c.settings.Retrieval.TopK,
		Observer:    c.metrics.Observer(),
		Logger:      c.log,
	})
}

// pingers returns the readiness probes for serve.
func (c *components) pingers() []server.Pinger {
	p := []server.Pinger{
		server.NewEmbedderPinger(c.embedder, c.settings.Embedding.Provider),
		server.NewDependencyPinger(c.settings.Store.Backend, c.store),
	}
	if c.runs != nil {
		p = append(p, server.NewDependencyPinger("runs", c.runs))
	}
	return p
}

// describeStore names the store location for user-facing output.
func (c *components) describeStore() string {
	if cs, ok := c.store.(*rag.ChromemStore); ok {
		return cs.Path()
	}
	return fmt.Sprintf("qdrant://%s:%d", c.settings.Qdrant.Host, c.settings.Qdrant.Port)
}
