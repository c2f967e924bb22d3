// Package rag defines the storage and embedding contracts of the retrieval
// pipeline and implements its two core stages: the [Indexer], which rebuilds
// the vector collection from a chunk sequence, and the [Retriever], which
// resolves a natural-language query to the most similar stored passages.
//
// Concrete backends (chromem-go on local disk, Qdrant over gRPC) satisfy
// [VectorStore] so neither stage depends on a specific store.
package rag

import (
	"context"
	"fmt"
)

// Defaults shared by the indexer, the retriever and the configuration layer.
const (
	// DefaultCollection is the name of the single live collection.
	DefaultCollection = "documents"

	// DefaultTopK is the number of passages returned when a caller asks for n <= 0.
	DefaultTopK = 3

	// DefaultInstruction is prepended to every query before embedding. It
	// matches the asymmetric retrieval prompt used by mxbai-embed-large.
	DefaultInstruction = "Represent this sentence for searching relevant passages:"
)

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings. The returned
	// slice is parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text through e.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// ChunkRecord is the persisted unit of a collection.
type ChunkRecord struct {
	// ID is "chunk_<n>", n being the chunk's position in the run's sequence.
	ID string
	// Text is the chunk content.
	Text string
	// Embedding is the chunk vector.
	Embedding []float32
	// Source is the path of the originating document.
	Source string
	// Offset is the code-point offset of the chunk within its document.
	Offset int
}

// Passage is one retrieval result.
type Passage struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	Similarity float32 `json:"similarity"`
}

// Texts returns the bare text of each passage, preserving order.
func Texts(passages []Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Text
	}
	return out
}

// Collection is a named set of chunk records with a cosine similarity index.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Insert stores records in bulk.
	Insert(ctx context.Context, records []ChunkRecord) error

	// Query returns up to topK passages ordered by decreasing cosine
	// similarity to embedding. topK must not exceed Count.
	Query(ctx context.Context, embedding []float32, topK int) ([]Passage, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// VectorStore manages collections in a persistent backend.
type VectorStore interface {
	// DestroyAll removes every collection and its persisted data. A store
	// that holds nothing is not an error.
	DestroyAll(ctx context.Context) error

	// CreateCollection creates an empty cosine-similarity collection.
	CreateCollection(ctx context.Context, name string) (Collection, error)

	// OpenCollection opens an existing collection. It returns an error
	// wrapping ErrCollectionNotFound when name does not exist.
	OpenCollection(ctx context.Context, name string) (Collection, error)

	// Close releases any resources held by the store.
	Close() error
}
