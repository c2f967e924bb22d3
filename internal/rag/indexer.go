package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/events"
)

// ChunkID returns the id of the n-th chunk of an ingestion run.
func ChunkID(n int) string {
	return fmt.Sprintf("chunk_%d", n)
}

// IndexerConfig configures an Indexer.
type IndexerConfig struct {
	// Collection is the name of the collection to rebuild (default: documents).
	Collection string

	// Dimensions, when positive, is the vector length every embedding must have.
	Dimensions int

	// Observer receives storage and embedding events. Optional.
	Observer events.Observer

	// Logger is used for progress logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// IndexResult summarises a successful rebuild.
type IndexResult struct {
	Collection string
	Chunks     int
	Dimensions int
	Duration   time.Duration
}

// Indexer replaces the live collection with the embeddings of one chunk
// sequence. Rebuilds are not incremental: every call starts from an empty
// store.
type Indexer struct {
	embedder Embedder
	store    VectorStore
	cfg      IndexerConfig
	log      *slog.Logger
}

// NewIndexer constructs an Indexer.
func NewIndexer(embedder Embedder, store VectorStore, cfg IndexerConfig) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{embedder: embedder, store: store, cfg: cfg, log: log}, nil
}

// Collection returns the name of the collection Rebuild replaces.
func (ix *Indexer) Collection() string { return ix.cfg.Collection }

// Rebuild wipes the store, recreates the collection and inserts one record
// per chunk with ids chunk_0 … chunk_{N-1}. An empty chunk sequence returns
// ErrNothingToIndex without touching storage.
func (ix *Indexer) Rebuild(ctx context.Context, chunks []chunker.Chunk) (IndexResult, error) {
	if len(chunks) == 0 {
		return IndexResult{}, ErrNothingToIndex
	}
	start := time.Now()
	name := ix.cfg.Collection

	if err := ix.store.DestroyAll(ctx); err != nil {
		return IndexResult{}, fmt.Errorf("%w: %w", ErrStorageWipe, err)
	}
	ix.cfg.Observer.Emit(events.Event{Phase: events.PhaseStorageReset, Collection: name})

	coll, err := ix.store.CreateCollection(ctx, name)
	if err != nil {
		return IndexResult{}, fmt.Errorf("rag: create collection: %w", err)
	}
	ix.cfg.Observer.Emit(events.Event{Phase: events.PhaseCollectionCreated, Collection: name})

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedStart := time.Now()
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return IndexResult{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	dim, err := ix.checkVectors(vectors, len(texts))
	if err != nil {
		return IndexResult{}, err
	}
	ix.cfg.Observer.Emit(events.Event{
		Phase:      events.PhaseEmbedComplete,
		Collection: name,
		Count:      len(vectors),
		Duration:   time.Since(embedStart),
	})

	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			ID:        ChunkID(i),
			Text:      c.Text,
			Embedding: vectors[i],
			Source:    c.Source,
			Offset:    c.Offset,
		}
	}
	if err := coll.Insert(ctx, records); err != nil {
		return IndexResult{}, fmt.Errorf("rag: insert records: %w", err)
	}

	res := IndexResult{
		Collection: name,
		Chunks:     len(records),
		Dimensions: dim,
		Duration:   time.Since(start),
	}
	ix.cfg.Observer.Emit(events.Event{
		Phase:      events.PhaseIndexComplete,
		Collection: name,
		Count:      res.Chunks,
		Duration:   res.Duration,
	})
	ix.log.Info("collection rebuilt",
		slog.String("collection", name),
		slog.Int("chunks", res.Chunks),
		slog.Int("dimensions", dim),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// checkVectors verifies the vector count and that every vector shares one
// non-zero dimension, matching the configured one when set.
func (ix *Indexer) checkVectors(vectors [][]float32, want int) (int, error) {
	if len(vectors) != want {
		return 0, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), want)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	if ix.cfg.Dimensions > 0 && dim != ix.cfg.Dimensions {
		return 0, fmt.Errorf("%w: got dimension %d, want %d", ErrEmbedding, dim, ix.cfg.Dimensions)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbedding, i, len(v), dim)
		}
	}
	return dim, nil
}
