// Package loader walks a documents directory and extracts plain text from
// every supported file. Each file extension maps to an ordered chain of
// [Extractor] strategies; the first one that yields non-empty text wins.
//
// Loading never fails because of a single file. Unreadable, corrupt or
// unsupported files are skipped and reported through the observer and the
// logger, and the walk continues.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/54b3r/docrag/internal/events"
)

// Document is a single loaded file.
type Document struct {
	// Path is the file path as found during the walk (root-joined).
	Path string
	// Text is the extracted content with leading and trailing whitespace removed.
	Text string
}

// FileError reports why a file could not be loaded. Err joins the failure
// of every extractor that was attempted, each prefixed with its name.
type FileError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *FileError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// Unwrap returns the joined extractor errors.
func (e *FileError) Unwrap() error { return e.Err }

// Config controls which extractors the loader registers by default.
type Config struct {
	// StripMarkdown renders .md files to plain text through the markdown
	// AST. When false, markdown is read verbatim like .txt.
	StripMarkdown bool
}

// Loader walks directories and extracts text using per-extension chains.
type Loader struct {
	chains   map[string][]Extractor
	log      *slog.Logger
	observer events.Observer
}

// Option customises a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithObserver sets the observer that receives file and load events.
func WithObserver(o events.Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// WithExtractors replaces the extractor chain for ext (".pdf", ".txt", ...).
// The extension is matched case-insensitively. An empty chain removes
// support for the extension.
func WithExtractors(ext string, chain ...Extractor) Option {
	return func(l *Loader) {
		ext = strings.ToLower(ext)
		if len(chain) == 0 {
			delete(l.chains, ext)
			return
		}
		l.chains[ext] = chain
	}
}

// New returns a Loader with the default chains: .txt read verbatim, .md
// rendered or verbatim depending on cfg.StripMarkdown, and .pdf tried with
// the whole-document strategy then the row-by-row strategy.
func New(cfg Config, opts ...Option) *Loader {
	md := Extractor(TextExtractor{})
	if cfg.StripMarkdown {
		md = MarkdownExtractor{}
	}

	l := &Loader{
		chains: map[string][]Extractor{
			".txt": {TextExtractor{}},
			".md":  {md},
			".pdf": {PDFTextExtractor{}, PDFRowExtractor{}},
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Extensions returns the supported extensions in sorted order.
func (l *Loader) Extensions() []string {
	exts := make([]string, 0, len(l.chains))
	for ext := range l.chains {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Load walks root recursively in lexical order and returns one Document per
// supported file with non-empty extracted text. A missing root yields an
// empty result. Only context cancellation and an unreadable root are
// returned as errors.
func (l *Loader) Load(ctx context.Context, root string) ([]Document, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.log.Warn("documents directory does not exist", slog.String("dir", root))
			l.observer.Emit(events.Event{Phase: events.PhaseLoadComplete})
			return nil, nil
		}
		return nil, fmt.Errorf("loader: stat %s: %w", root, err)
	}

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			l.skip(path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		chain, ok := l.chains[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		text, err := l.extract(ctx, path, chain)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			l.skip(path, err)
		case text == "":
			l.log.Debug("skipping empty file", slog.String("path", path))
			l.observer.Emit(events.Event{Phase: events.PhaseFileSkipped, Path: path})
		default:
			docs = append(docs, Document{Path: path, Text: text})
			l.observer.Emit(events.Event{Phase: events.PhaseFileLoaded, Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", root, err)
	}

	l.log.Info("documents loaded", slog.String("dir", root), slog.Int("count", len(docs)))
	l.observer.Emit(events.Event{Phase: events.PhaseLoadComplete, Count: len(docs)})
	return docs, nil
}

// extract runs chain against path. It returns ("", nil) when every
// extractor succeeded but produced only whitespace, and a *FileError when
// at least one extractor failed and none produced text.
func (l *Loader) extract(ctx context.Context, path string, chain []Extractor) (string, error) {
	var errs []error
	for _, ex := range chain {
		text, err := ex.Extract(ctx, path)
		if err != nil {
			l.log.Debug("extractor failed",
				slog.String("path", path),
				slog.String("extractor", ex.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	if len(errs) > 0 {
		return "", &FileError{Path: path, Err: errors.Join(errs...)}
	}
	return "", nil
}

func (l *Loader) skip(path string, err error) {
	l.log.Warn("skipping file", slog.String("path", path), slog.String("error", err.Error()))
	l.observer.Emit(events.Event{Phase: events.PhaseFileSkipped, Path: path, Err: err})
}
