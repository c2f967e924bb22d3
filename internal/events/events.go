// Package events defines the progress hook emitted by the ingestion and
// retrieval pipeline. Components never print; they emit an [Event] to an
// [Observer] and any presentation layer (logs, metrics, CLI output)
// subscribes by passing its own observer in at construction time.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Phase names a pipeline milestone.
type Phase string

const (
	// PhaseFileLoaded is emitted once per file whose text was extracted.
	PhaseFileLoaded Phase = "file_loaded"
	// PhaseFileSkipped is emitted for a file that was skipped. Err is set
	// when the skip was caused by a failure rather than empty content.
	PhaseFileSkipped Phase = "file_skipped"
	// PhaseLoadComplete is emitted after the directory walk. Count is the
	// number of documents loaded.
	PhaseLoadComplete Phase = "load_complete"
	// PhaseChunkComplete is emitted after chunking. Count is the number of chunks.
	PhaseChunkComplete Phase = "chunk_complete"
	// PhaseStorageReset is emitted after the previous collection storage was wiped.
	PhaseStorageReset Phase = "storage_reset"
	// PhaseCollectionCreated is emitted after the fresh collection exists.
	PhaseCollectionCreated Phase = "collection_created"
	// PhaseEmbedComplete is emitted after a batch embedding call. Count is
	// the number of vectors produced.
	PhaseEmbedComplete Phase = "embed_complete"
	// PhaseIndexComplete is emitted after the bulk insert. Count is the
	// number of records stored.
	PhaseIndexComplete Phase = "index_complete"
	// PhaseQueryComplete is emitted after a retrieval. Count is the number
	// of passages returned; Err is set on failure.
	PhaseQueryComplete Phase = "query_complete"
)

// Event is a single progress notification.
type Event struct {
	// Phase identifies the milestone.
	Phase Phase
	// Path is the file the event refers to, if any.
	Path string
	// Collection is the collection name the event refers to, if any.
	Collection string
	// Count is a phase-specific quantity (documents, chunks, vectors, results).
	Count int
	// Duration is the wall-clock time spent in the phase, when measured.
	Duration time.Duration
	// Err is the failure associated with the event, if any.
	Err error
}

// Observer receives pipeline events. Observers are called synchronously on
// the emitting goroutine and must not block.
type Observer func(Event)

// Emit delivers ev to o. A nil observer is a no-op.
func (o Observer) Emit(ev Event) {
	if o != nil {
		o(ev)
	}
}

// Fanout returns an Observer that forwards every event to each non-nil
// observer in order.
func Fanout(observers ...Observer) Observer {
	active := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(ev Event) {
		for _, o := range active {
			o(ev)
		}
	}
}

// LogObserver returns an Observer that writes each event as a structured log
// record. Failures are logged at WARN, per-file loads at DEBUG and phase
// completions at INFO.
func LogObserver(log *slog.Logger) Observer {
	if log == nil {
		log = slog.Default()
	}
	return func(ev Event) {
		attrs := []slog.Attr{slog.String("phase", string(ev.Phase))}
		if ev.Path != "" {
			attrs = append(attrs, slog.String("path", ev.Path))
		}
		if ev.Collection != "" {
			attrs = append(attrs, slog.String("collection", ev.Collection))
		}
		if ev.Count > 0 {
			attrs = append(attrs, slog.Int("count", ev.Count))
		}
		if ev.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", ev.Duration))
		}

		level := slog.LevelInfo
		switch {
		case ev.Err != nil:
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", ev.Err))
		case ev.Phase == PhaseFileLoaded || ev.Phase == PhaseFileSkipped:
			level = slog.LevelDebug
		}

		log.LogAttrs(context.Background(), level, "pipeline event", attrs...)
	}
}
