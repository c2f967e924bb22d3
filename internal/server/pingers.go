package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docrag/internal/rag"
)

// pingable is implemented by dependencies with a native health probe:
// the Ollama embedder, the chromem and Qdrant stores and the run ledger.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts a dependency with a Ping method to the Pinger
// interface under a fixed name.
type DependencyPinger struct {
	name string
	dep  pingable
}

// NewDependencyPinger constructs a DependencyPinger.
func NewDependencyPinger(name string, dep pingable) *DependencyPinger {
	return &DependencyPinger{name: name, dep: dep}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping delegates to the dependency.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes an embedding backend. Embedders with a native Ping
// (Ollama's version endpoint) are probed for free; the others are asked to
// embed one short string, which is billed by hosted providers.
type EmbedderPinger struct {
	embedder rag.Embedder
	name     string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping probes the embedding backend.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if pp, ok := p.embedder.(pingable); ok {
		if err := pp.Ping(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}

	slog.Debug("pinger: probing embedder with a one-word request", slog.String("backend", p.name))
	vec, err := rag.EmbedOne(ctx, p.embedder, "ping")
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("embed probe returned an empty vector")
	}
	return nil
}
