package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const (
	metaSource = "source"
	metaOffset = "offset"

	// generationFile sits in the store root, where chromem ignores plain
	// files. Insert rewrites it last; its content names the generation.
	generationFile = "GENERATION"
)

// errPrecomputed is returned by the collection embedding function. Records
// always arrive with their vectors, so chromem must never embed on its own.
var errPrecomputed = errors.New("chromem: embeddings must be precomputed")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputed
}

// ChromemStore is a file-backed VectorStore built on chromem-go. Every
// collection lives under a single directory, which DestroyAll removes.
//
// chromem keeps the database in memory once loaded, so a store opened by a
// long-running reader would never see rebuilds made by another process.
// Every completed Insert therefore writes a generation marker, and
// OpenCollection reloads the directory when the marker on disk differs from
// the generation in memory. A store whose directory has no marker holds no
// completed generation and reports ErrCollectionNotFound.
type ChromemStore struct {
	mu       sync.Mutex
	path     string
	compress bool
	db       *chromem.DB

	// generation is the marker content the in-memory db was loaded at or
	// committed with; "" when none.
	generation string
}

// NewChromemStore opens (or creates) the persistent database rooted at path.
func NewChromemStore(path string, compress bool) (*ChromemStore, error) {
	if path == "" {
		return nil, fmt.Errorf("chromem: store path must not be empty")
	}
	s := &ChromemStore{path: path, compress: compress}
	gen, err := s.readGeneration()
	if err != nil {
		return nil, err
	}
	if err := s.load(gen); err != nil {
		return nil, err
	}
	return s, nil
}

// load replaces the in-memory db with the directory contents. Callers hold
// s.mu for writing, except during construction.
func (s *ChromemStore) load(gen string) error {
	db, err := chromem.NewPersistentDB(s.path, s.compress)
	if err != nil {
		return fmt.Errorf("chromem: open %s: %w", s.path, err)
	}
	s.db = db
	s.generation = gen
	return nil
}

// readGeneration returns the marker on disk, or "" when there is none.
func (s *ChromemStore) readGeneration() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.path, generationFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("chromem: read generation: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// commit marks the current contents as a completed generation. The marker is
// renamed into place so readers never see a partial write.
func (s *ChromemStore) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := uuid.NewString()
	tmp := filepath.Join(s.path, generationFile+".tmp")
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0o600); err != nil {
		return fmt.Errorf("chromem: write generation: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.path, generationFile)); err != nil {
		return fmt.Errorf("chromem: write generation: %w", err)
	}
	s.generation = gen
	return nil
}

// Path returns the store directory.
func (s *ChromemStore) Path() string { return s.path }

// DestroyAll removes the whole store directory and reopens an empty database.
func (s *ChromemStore) DestroyAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("chromem: remove %s: %w", s.path, err)
	}
	return s.load("")
}

// CreateCollection implements VectorStore. chromem scores by cosine
// similarity on normalised vectors, so no distance option is needed.
func (s *ChromemStore) CreateCollection(_ context.Context, name string) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection %q: %w", name, err)
	}
	return &chromemCollection{c: c, store: s}, nil
}

// OpenCollection implements VectorStore. It picks up generations committed
// through other handles on the same directory. While another process is
// rebuilding (marker removed), the last loaded generation keeps serving.
func (s *ChromemStore) OpenCollection(_ context.Context, name string) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.readGeneration()
	if err != nil {
		return nil, err
	}
	if gen != "" && gen != s.generation {
		if err := s.load(gen); err != nil {
			return nil, err
		}
	}
	if s.generation == "" {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}

	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return &chromemCollection{c: c, store: s}, nil
}

// Ping reports whether the store directory is reachable.
func (s *ChromemStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("chromem: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("chromem: %s is not a directory", s.path)
	}
	return nil
}

// Close implements VectorStore. chromem persists on every write, so there
// is nothing to flush.
func (s *ChromemStore) Close() error { return nil }

type chromemCollection struct {
	c     *chromem.Collection
	store *ChromemStore
}

func (c *chromemCollection) Name() string { return c.c.Name }

func (c *chromemCollection) Insert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Embedding,
			Metadata: map[string]string{
				metaSource: r.Source,
				metaOffset: strconv.Itoa(r.Offset),
			},
		}
	}
	if err := c.c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: insert into %q: %w", c.c.Name, err)
	}
	return c.store.commit()
}

func (c *chromemCollection) Query(ctx context.Context, embedding []float32, topK int) ([]Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	results, err := c.c.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query %q: %w", c.c.Name, err)
	}
	passages := make([]Passage, len(results))
	for i, r := range results {
		passages[i] = Passage{
			ID:         r.ID,
			Text:       r.Content,
			Source:     r.Metadata[metaSource],
			Similarity: r.Similarity,
		}
	}
	return passages, nil
}

func (c *chromemCollection) Count(_ context.Context) (int, error) {
	return c.c.Count(), nil
}
