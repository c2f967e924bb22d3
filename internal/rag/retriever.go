package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docrag/internal/events"
)

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	// Collection is the collection to query (default: documents).
	Collection string

	// Instruction is prepended to each query, separated by one space.
	// Empty disables prefixing.
	Instruction string

	// TopK is the result count used when Retrieve is called with n <= 0
	// (default: 3).
	TopK int

	// Observer receives a query_complete event per call. Optional.
	Observer events.Observer

	// Logger is used for query logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Retriever embeds queries and returns the most similar stored passages.
// It never writes to the store and is safe for concurrent use when the
// embedder and store are.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	cfg      RetrieverConfig
	log      *slog.Logger
}

// NewRetriever constructs a Retriever from an Embedder and a VectorStore.
func NewRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, log: log}, nil
}

// Collection returns the name of the queried collection.
func (r *Retriever) Collection() string { return r.cfg.Collection }

// Retrieve returns up to n passages in decreasing similarity to query. n <= 0
// uses the configured default; n above the collection size returns every
// passage. A missing or empty collection yields ErrCollectionNotFound.
func (r *Retriever) Retrieve(ctx context.Context, query string, n int) (passages []Passage, err error) {
	start := time.Now()
	defer func() {
		r.cfg.Observer.Emit(events.Event{
			Phase:      events.PhaseQueryComplete,
			Collection: r.cfg.Collection,
			Count:      len(passages),
			Duration:   time.Since(start),
			Err:        err,
		})
	}()

	if n <= 0 {
		n = r.cfg.TopK
	}

	vec, err := EmbedOne(ctx, r.embedder, r.prefix(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	coll, err := r.store.OpenCollection(ctx, r.cfg.Collection)
	if err != nil {
		return nil, err
	}
	count, err := coll.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: count collection: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrCollectionNotFound, r.cfg.Collection)
	}

	passages, err = coll.Query(ctx, vec, min(n, count))
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	r.log.Debug("query resolved",
		slog.String("collection", r.cfg.Collection),
		slog.Int("requested", n),
		slog.Int("returned", len(passages)),
	)
	return passages, nil
}

func (r *Retriever) prefix(query string) string {
	if r.cfg.Instruction == "" {
		return query
	}
	return r.cfg.Instruction + " " + query
}
