// Package ingestion implements the offline indexing pipeline: load every
// supported file under the documents folder, cut the text into overlapping
// windows, and rebuild the vector collection from them. It is invoked by the
// `docrag ingest` and `docrag demo` CLI commands.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/events"
	"github.com/54b3r/docrag/internal/loader"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
)

// ErrNoDocuments is returned by Run when the documents folder holds no
// loadable document. The existing collection is left untouched.
var ErrNoDocuments = errors.New("ingestion: no documents found")

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// DocumentsDir is the folder to ingest.
	DocumentsDir string

	// Loader configures the default extractor chains.
	Loader loader.Config

	// LoaderOptions are applied after the pipeline's own loader options.
	LoaderOptions []loader.Option

	// ChunkSize is the window length in characters.
	// Defaults to chunker.DefaultSize (and overlap to chunker.DefaultOverlap)
	// if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive windows.
	ChunkOverlap int

	// Observer receives every pipeline event. Optional.
	Observer events.Observer

	// Runs records each run in the ingestion ledger. Optional.
	Runs store.RunStore

	// Logger is used for progress logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Report summarises one ingestion run.
type Report struct {
	RunID        string
	DocumentsDir string
	Documents    int
	Skipped      int
	Chunks       int
	Collection   string
	Duration     time.Duration
}

// Pipeline orchestrates the load → chunk → index flow. A Pipeline is not
// safe for concurrent Run calls.
type Pipeline struct {
	loader  *loader.Loader
	chunker *chunker.Chunker
	indexer *rag.Indexer
	cfg     Config
	log     *slog.Logger

	skipped int
}

// NewPipeline constructs a Pipeline around indexer. It returns
// chunker.ErrInvalidConfig when the chunk parameters are unusable.
func NewPipeline(indexer *rag.Indexer, cfg Config) (*Pipeline, error) {
	if indexer == nil {
		return nil, fmt.Errorf("ingestion: indexer must not be nil")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultSize
		if cfg.ChunkOverlap == 0 {
			cfg.ChunkOverlap = chunker.DefaultOverlap
		}
	}
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Pipeline{chunker: ch, indexer: indexer, cfg: cfg, log: log}

	opts := []loader.Option{
		loader.WithLogger(log),
		loader.WithObserver(events.Fanout(p.countSkips, cfg.Observer)),
	}
	p.loader = loader.New(cfg.Loader, append(opts, cfg.LoaderOptions...)...)
	return p, nil
}

func (p *Pipeline) countSkips(ev events.Event) {
	if ev.Phase == events.PhaseFileSkipped {
		p.skipped++
	}
}

// Run executes one full ingestion. An empty documents folder returns
// ErrNoDocuments without touching the store.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	p.skipped = 0
	rep := Report{DocumentsDir: p.cfg.DocumentsDir}

	run := p.beginRun(ctx)
	rep.RunID = run.ID

	rep, err := p.run(ctx, rep)
	rep.Skipped = p.skipped
	rep.Duration = time.Since(start)

	p.finishRun(ctx, run, rep, err)
	if err != nil {
		return rep, err
	}

	p.log.Info("ingestion complete",
		slog.String("dir", rep.DocumentsDir),
		slog.Int("documents", rep.Documents),
		slog.Int("skipped", rep.Skipped),
		slog.Int("chunks", rep.Chunks),
		slog.String("collection", rep.Collection),
		slog.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, rep Report) (Report, error) {
	docs, err := p.loader.Load(ctx, p.cfg.DocumentsDir)
	if err != nil {
		return rep, fmt.Errorf("ingestion: load: %w", err)
	}
	rep.Documents = len(docs)
	if len(docs) == 0 {
		return rep, ErrNoDocuments
	}

	chunks := p.chunker.Chunk(docs)
	rep.Chunks = len(chunks)
	p.cfg.Observer.Emit(events.Event{Phase: events.PhaseChunkComplete, Count: len(chunks)})

	res, err := p.indexer.Rebuild(ctx, chunks)
	if err != nil {
		return rep, fmt.Errorf("ingestion: %w", err)
	}
	rep.Collection = res.Collection
	return rep, nil
}

// beginRun opens a ledger entry. Ledger failures never fail ingestion.
func (p *Pipeline) beginRun(ctx context.Context) store.Run {
	if p.cfg.Runs == nil {
		return store.Run{}
	}
	run, err := p.cfg.Runs.Begin(ctx, p.cfg.DocumentsDir, p.indexer.Collection())
	if err != nil {
		p.log.Warn("ingestion: could not record run start", slog.String("error", err.Error()))
		return store.Run{}
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run store.Run, rep Report, err error) {
	if p.cfg.Runs == nil || run.ID == "" {
		return
	}
	run.Documents = rep.Documents
	run.Skipped = rep.Skipped
	run.Chunks = rep.Chunks
	switch {
	case err == nil:
		run.Status = store.StatusSucceeded
	case errors.Is(err, ErrNoDocuments), errors.Is(err, rag.ErrNothingToIndex):
		run.Status = store.StatusEmpty
	default:
		run.Status = store.StatusFailed
		run.Error = err.Error()
	}
	// The run context may already be cancelled; the ledger write must still land.
	if ferr := p.cfg.Runs.Finish(context.WithoutCancel(ctx), run); ferr != nil {
		p.log.Warn("ingestion: could not record run result",
			slog.String("run_id", run.ID),
			slog.String("error", ferr.Error()),
		)
	}
}
