package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored on every Qdrant point. Qdrant point ids must be
// unsigned integers or UUIDs, so the chunk id travels in the payload.
const (
	payloadID     = "chunk_id"
	payloadText   = "text"
	payloadSource = "source"
	payloadOffset = "offset"
)

// upsertMaxBytes bounds the estimated size of one Upsert request, well under
// gRPC's default 4 MiB message limit.
const upsertMaxBytes = 2 << 20

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the embedding dimensionality. When zero, collections are
	// sized from the first inserted batch.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. It tracks
// the collections it created so DestroyAll only drops what docrag owns.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig

	mu    sync.Mutex
	owned map[string]struct{}
}

// NewQdrantStore connects to Qdrant. The connection is lazy; use Ping to
// verify reachability.
func NewQdrantStore(cfg QdrantConfig, collections ...string) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	owned := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		owned[name] = struct{}{}
	}
	return &QdrantStore{client: client, cfg: cfg, owned: owned}, nil
}

// DestroyAll drops every collection this store owns. Collections that do
// not exist are skipped.
func (s *QdrantStore) DestroyAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name := range s.owned {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("qdrant: check collection %q: %w", name, err)
		}
		if !exists {
			continue
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("qdrant: drop collection %q: %w", name, err)
		}
	}
	return nil
}

// CreateCollection implements VectorStore. With a known VectorSize the
// collection is created immediately; otherwise creation waits for the first
// Insert, which fixes the dimension.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string) (Collection, error) {
	s.mu.Lock()
	s.owned[name] = struct{}{}
	s.mu.Unlock()

	c := &qdrantCollection{client: s.client, name: name}
	if s.cfg.VectorSize > 0 {
		if err := c.create(ctx, s.cfg.VectorSize); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OpenCollection implements VectorStore.
func (s *QdrantStore) OpenCollection(ctx context.Context, name string) (Collection, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection %q: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return &qdrantCollection{client: s.client, name: name, exists: true}, nil
}

// Ping checks that the Qdrant server answers its health endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

type qdrantCollection struct {
	client *qdrant.Client
	name   string
	exists bool
	next   uint64
}

func (c *qdrantCollection) Name() string { return c.name }

func (c *qdrantCollection) create(ctx context.Context, size uint64) error {
	err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", c.name, err)
	}
	c.exists = true
	return nil
}

func (c *qdrantCollection) Insert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if !c.exists {
		if err := c.create(ctx, uint64(len(records[0].Embedding))); err != nil {
			return err
		}
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(c.next),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadID:     r.ID,
				payloadText:   r.Text,
				payloadSource: r.Source,
				payloadOffset: r.Offset,
			}),
		})
		c.next++
	}

	groups := upsertGroups(records, upsertMaxBytes)
	for i, g := range groups {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Wait:           qdrant.PtrOf(true),
			Points:         points[g[0]:g[1]],
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed (batch %d/%d): %w", i+1, len(groups), err)
		}
	}
	return nil
}

// upsertGroups splits records into consecutive [start, end) ranges whose
// estimated wire size stays under maxBytes. A record above the limit gets a
// range of its own.
func upsertGroups(records []ChunkRecord, maxBytes int) [][2]int {
	var groups [][2]int
	start, size := 0, 0
	for i, r := range records {
		cost := 4*len(r.Embedding) + len(r.Text) + len(r.Source) + len(r.ID) + 64
		if i > start && size+cost > maxBytes {
			groups = append(groups, [2]int{start, i})
			start, size = i, 0
		}
		size += cost
	}
	if start < len(records) {
		groups = append(groups, [2]int{start, len(records)})
	}
	return groups
}

func (c *qdrantCollection) Query(ctx context.Context, embedding []float32, topK int) ([]Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK)
	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		p := Passage{Similarity: r.Score}
		if payload := r.Payload; payload != nil {
			p.ID = payload[payloadID].GetStringValue()
			p.Text = payload[payloadText].GetStringValue()
			p.Source = payload[payloadSource].GetStringValue()
		}
		passages = append(passages, p)
	}
	return passages, nil
}

func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	if !c.exists {
		return 0, nil
	}
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q: %w", c.name, err)
	}
	return int(n), nil
}
