package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/rag/ragtest"
	"github.com/54b3r/docrag/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

type fixture struct {
	docs  string
	store *rag.ChromemStore
	ix    *rag.Indexer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "documents")
	if err := os.MkdirAll(docs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	s, err := rag.NewChromemStore(filepath.Join(root, "chroma_db"), false)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	ix, err := rag.NewIndexer(&ragtest.BagOfWords{}, s, rag.IndexerConfig{})
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	return fixture{docs: docs, store: s, ix: ix}
}

func (f fixture) count(t *testing.T) int {
	t.Helper()
	coll, err := f.store.OpenCollection(context.Background(), rag.DefaultCollection)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	n, err := coll.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func Test_Pipeline_Run(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	writeFile(t, f.docs, "ml.txt", "machine learning is a field of artificial intelligence")
	writeFile(t, f.docs, "go.md", "# Go\n\nGo is a statically typed compiled language.")
	writeFile(t, f.docs, "long.txt", strings.Repeat("abcdefghij", 120))
	writeFile(t, f.docs, "blank.txt", "   \n\t ")
	writeFile(t, f.docs, "notes.csv", "ignored,file")

	var phases []events.Phase
	p, err := NewPipeline(f.ix, Config{
		DocumentsDir: f.docs,
		Observer:     func(ev events.Event) { phases = append(phases, ev.Phase) },
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// long.txt is 1200 characters: windows at 0, 400 and 800.
	if rep.Documents != 3 || rep.Skipped != 1 || rep.Chunks != 5 {
		t.Errorf("report = %+v, want 3 documents, 1 skipped, 5 chunks", rep)
	}
	if rep.Collection != rag.DefaultCollection {
		t.Errorf("collection = %q", rep.Collection)
	}
	if got := f.count(t); got != rep.Chunks {
		t.Errorf("stored %d records, want %d", got, rep.Chunks)
	}

	want := []events.Phase{events.PhaseLoadComplete, events.PhaseChunkComplete, events.PhaseIndexComplete}
	idx := 0
	for _, ph := range phases {
		if idx < len(want) && ph == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Errorf("phases %v do not contain %v in order", phases, want)
	}
}

func Test_Pipeline_EmptyFolderLeavesCollection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	writeFile(t, f.docs, "a.txt", "python is a popular programming language")

	p, err := NewPipeline(f.ix, Config{DocumentsDir: f.docs})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := os.Remove(filepath.Join(f.docs, "a.txt")); err != nil {
		t.Fatal(err)
	}
	_, err = p.Run(context.Background())
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("want ErrNoDocuments, got %v", err)
	}
	if got := f.count(t); got != 1 {
		t.Errorf("previous collection should survive, count = %d", got)
	}
}

func Test_Pipeline_MissingFolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := NewPipeline(f.ix, Config{DocumentsDir: filepath.Join(f.docs, "nope")})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("want ErrNoDocuments, got %v", err)
	}
	if _, err := f.store.OpenCollection(context.Background(), rag.DefaultCollection); !errors.Is(err, rag.ErrCollectionNotFound) {
		t.Errorf("no collection should exist, got %v", err)
	}
}

func Test_Pipeline_InvalidChunkConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name          string
		size, overlap int
	}{
		{"negative size", -1, 0},
		{"overlap equals size", 100, 100},
		{"negative overlap", 100, -5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPipeline(f.ix, Config{DocumentsDir: f.docs, ChunkSize: tc.size, ChunkOverlap: tc.overlap})
			if !errors.Is(err, chunker.ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func Test_Pipeline_RecordsRuns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	runs, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = runs.Close() })
	ctx := context.Background()

	p, err := NewPipeline(f.ix, Config{DocumentsDir: f.docs, Runs: runs})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Run(ctx); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("want ErrNoDocuments, got %v", err)
	}
	latest, err := runs.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Status != store.StatusEmpty {
		t.Errorf("empty run status = %s", latest.Status)
	}

	writeFile(t, f.docs, "a.txt", "chromadb is a vector database for embeddings")
	rep, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	latest, err = runs.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != rep.RunID || latest.Status != store.StatusSucceeded || latest.Chunks != 1 {
		t.Errorf("latest = %+v, report = %+v", latest, rep)
	}
	if latest.Collection != rag.DefaultCollection || latest.DocumentsDir != f.docs {
		t.Errorf("latest run identity = %q %q", latest.Collection, latest.DocumentsDir)
	}
}

func Test_Pipeline_EmbeddingFailureRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	writeFile(t, f.docs, "a.txt", "langchain is a framework for building llm applications")

	runs, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = runs.Close() })

	broken := ragtest.Func(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	})
	ix, err := rag.NewIndexer(broken, f.store, rag.IndexerConfig{})
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	p, err := NewPipeline(ix, Config{DocumentsDir: f.docs, Runs: runs})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	_, err = p.Run(context.Background())
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Fatalf("want ErrEmbedding, got %v", err)
	}
	latest, err := runs.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Status != store.StatusFailed || !strings.Contains(latest.Error, "connection refused") {
		t.Errorf("latest = %+v", latest)
	}
}
