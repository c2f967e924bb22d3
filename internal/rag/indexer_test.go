package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/rag/ragtest"
)

var sampleChunks = []chunker.Chunk{
	{Text: "machine learning is a field of artificial intelligence", Source: "ml.txt"},
	{Text: "python is a popular programming language", Source: "python.md"},
	{Text: "chromadb is a vector database for embeddings", Source: "chroma.pdf"},
	{Text: "langchain is a framework for building llm applications", Source: "lc.txt"},
	{Text: "go is a statically typed compiled language", Source: "go.txt", Offset: 40},
}

func newChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(filepath.Join(t.TempDir(), "chroma_db"), false)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newIndexer(t *testing.T, e Embedder, s VectorStore, cfg IndexerConfig) *Indexer {
	t.Helper()
	ix, err := NewIndexer(e, s, cfg)
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	return ix
}

func collectionCount(t *testing.T, s VectorStore, name string) int {
	t.Helper()
	coll, err := s.OpenCollection(context.Background(), name)
	if err != nil {
		t.Fatalf("OpenCollection(%q): %v", name, err)
	}
	n, err := coll.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

// failingStore wraps a VectorStore and fails DestroyAll.
type failingStore struct {
	VectorStore
	err error
}

func (f failingStore) DestroyAll(context.Context) error { return f.err }

func TestNewIndexer_NilDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewIndexer(nil, newChromem(t), IndexerConfig{}); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewIndexer(&ragtest.BagOfWords{}, nil, IndexerConfig{}); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestRebuild_AssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	store := newChromem(t)
	res, err := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{}).Rebuild(context.Background(), sampleChunks)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.Collection != DefaultCollection || res.Chunks != len(sampleChunks) || res.Dimensions != 256 {
		t.Errorf("unexpected result: %+v", res)
	}

	coll, err := store.OpenCollection(context.Background(), DefaultCollection)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	vec, _ := EmbedOne(context.Background(), &ragtest.BagOfWords{}, "anything")
	passages, err := coll.Query(context.Background(), vec, len(sampleChunks))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	seen := make(map[string]Passage)
	for _, p := range passages {
		if _, dup := seen[p.ID]; dup {
			t.Errorf("duplicate id %q", p.ID)
		}
		seen[p.ID] = p
	}
	for i, c := range sampleChunks {
		p, ok := seen[ChunkID(i)]
		if !ok {
			t.Errorf("missing %s", ChunkID(i))
			continue
		}
		if p.Text != c.Text || p.Source != c.Source {
			t.Errorf("%s = {%q %q}, want {%q %q}", p.ID, p.Text, p.Source, c.Text, c.Source)
		}
	}
}

func TestRebuild_IsIdempotent(t *testing.T) {
	t.Parallel()

	store := newChromem(t)
	ix := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{Collection: "notes"})

	for i := range 2 {
		if _, err := ix.Rebuild(context.Background(), sampleChunks); err != nil {
			t.Fatalf("Rebuild #%d: %v", i+1, err)
		}
		if got := collectionCount(t, store, "notes"); got != len(sampleChunks) {
			t.Fatalf("after rebuild #%d: count = %d, want %d", i+1, got, len(sampleChunks))
		}
	}
}

func TestRebuild_ReplacesPreviousGeneration(t *testing.T) {
	t.Parallel()

	store := newChromem(t)
	ix := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{})

	if _, err := ix.Rebuild(context.Background(), sampleChunks); err != nil {
		t.Fatalf("first Rebuild: %v", err)
	}
	if _, err := ix.Rebuild(context.Background(), sampleChunks[:2]); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	if got := collectionCount(t, store, DefaultCollection); got != 2 {
		t.Errorf("count = %d, want 2 (no leftovers from the previous run)", got)
	}
}

func TestRebuild_EmptyInputLeavesStorageUntouched(t *testing.T) {
	t.Parallel()

	store := newChromem(t)
	ix := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{})

	if _, err := ix.Rebuild(context.Background(), sampleChunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if _, err := ix.Rebuild(context.Background(), nil); !errors.Is(err, ErrNothingToIndex) {
		t.Fatalf("want ErrNothingToIndex, got %v", err)
	}
	if got := collectionCount(t, store, DefaultCollection); got != len(sampleChunks) {
		t.Errorf("count = %d, want previous collection intact", got)
	}
}

func TestRebuild_EmptyInputOnFreshStoreCreatesNothing(t *testing.T) {
	t.Parallel()

	store := newChromem(t)
	if _, err := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{}).Rebuild(context.Background(), nil); !errors.Is(err, ErrNothingToIndex) {
		t.Fatalf("want ErrNothingToIndex, got %v", err)
	}
	if _, err := store.OpenCollection(context.Background(), DefaultCollection); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("want no collection, got %v", err)
	}
}

func TestRebuild_EmbeddingFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		embedder Embedder
		dims     int
	}{
		{
			name: "embedder error",
			embedder: ragtest.Func(func(context.Context, []string) ([][]float32, error) {
				return nil, errors.New("model not loaded")
			}),
		},
		{
			name: "vector count mismatch",
			embedder: ragtest.Func(func(_ context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1, 0}}, nil
			}),
		},
		{
			name: "inconsistent dimensions",
			embedder: ragtest.Func(func(_ context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i := range texts {
					out[i] = make([]float32, 4+i)
					out[i][0] = 1
				}
				return out, nil
			}),
		},
		{
			name:     "unexpected dimension",
			embedder: &ragtest.BagOfWords{Dim: 64},
			dims:     1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ix := newIndexer(t, tt.embedder, newChromem(t), IndexerConfig{Dimensions: tt.dims})
			if _, err := ix.Rebuild(context.Background(), sampleChunks); !errors.Is(err, ErrEmbedding) {
				t.Errorf("want ErrEmbedding, got %v", err)
			}
		})
	}
}

func TestRebuild_WipeFailure(t *testing.T) {
	t.Parallel()

	store := failingStore{VectorStore: newChromem(t), err: errors.New("permission denied")}
	_, err := newIndexer(t, &ragtest.BagOfWords{}, store, IndexerConfig{}).Rebuild(context.Background(), sampleChunks)
	if !errors.Is(err, ErrStorageWipe) {
		t.Errorf("want ErrStorageWipe, got %v", err)
	}
}

func TestRebuild_EmitsPhasesInOrder(t *testing.T) {
	t.Parallel()

	var phases []events.Phase
	obs := events.Observer(func(ev events.Event) { phases = append(phases, ev.Phase) })

	ix := newIndexer(t, &ragtest.BagOfWords{}, newChromem(t), IndexerConfig{Observer: obs})
	if _, err := ix.Rebuild(context.Background(), sampleChunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	want := []events.Phase{
		events.PhaseStorageReset,
		events.PhaseCollectionCreated,
		events.PhaseEmbedComplete,
		events.PhaseIndexComplete,
	}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chroma_db")
	first, err := NewChromemStore(path, true)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	if _, err := newIndexer(t, &ragtest.BagOfWords{}, first, IndexerConfig{}).Rebuild(context.Background(), sampleChunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	second, err := NewChromemStore(path, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := collectionCount(t, second, DefaultCollection); got != len(sampleChunks) {
		t.Errorf("count after reopen = %d, want %d", got, len(sampleChunks))
	}
	if err := second.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRebuild_EmbedsInOneCall(t *testing.T) {
	t.Parallel()

	var calls []int
	bow := &ragtest.BagOfWords{}
	counting := ragtest.Func(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls = append(calls, len(texts))
		return bow.Embed(ctx, texts)
	})

	st := newChromem(t)
	if _, err := newIndexer(t, counting, st, IndexerConfig{}).Rebuild(context.Background(), sampleChunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(calls) != 1 || calls[0] != len(sampleChunks) {
		t.Errorf("embed calls = %v, want one call with %d texts", calls, len(sampleChunks))
	}
	if got := bow.Inputs(); len(got) != len(sampleChunks) || got[4] != sampleChunks[4].Text {
		t.Errorf("texts embedded out of order: %v", got)
	}
}
