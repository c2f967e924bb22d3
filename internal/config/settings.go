package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
)

// RunsDisabled is the DOCRAG_RUNS_DB value that turns the run ledger off.
const RunsDisabled = "disabled"

// InstructionNone is the QUERY_INSTRUCTION value that disables query prefixing.
const InstructionNone = "none"

// Settings is the typed runtime configuration, parsed from the environment
// after [Load] has exported any YAML values.
type Settings struct {
	Documents Documents
	Store     Store
	Qdrant    Qdrant
	Embedding Embedding
	Retrieval Retrieval

	// RunsDB is the SQLite path of the ingestion ledger, or "disabled".
	RunsDB string `env:"DOCRAG_RUNS_DB" envDefault:"./data/docrag.db"`

	// APIKey protects the HTTP API when non-empty.
	APIKey string `env:"DOCRAG_API_KEY"`
}

// Documents holds the loader and chunker settings.
type Documents struct {
	Dir           string `env:"DOCUMENTS_DIR" envDefault:"./data/documents"`
	ChunkSize     int    `env:"CHUNK_SIZE" envDefault:"500"`
	ChunkOverlap  int    `env:"CHUNK_OVERLAP" envDefault:"100"`
	StripMarkdown bool   `env:"MARKDOWN_STRIP" envDefault:"false"`
}

// Store holds the vector store settings.
type Store struct {
	Backend    string `env:"VECTOR_STORE" envDefault:"chromem"`
	Dir        string `env:"STORE_DIR" envDefault:"./data/chroma_db"`
	Compress   bool   `env:"STORE_COMPRESS" envDefault:"false"`
	Collection string `env:"COLLECTION_NAME" envDefault:"documents"`
}

// Qdrant holds the Qdrant connection settings.
type Qdrant struct {
	Host   string `env:"QDRANT_HOST" envDefault:"localhost"`
	Port   int    `env:"QDRANT_PORT" envDefault:"6334"`
	APIKey string `env:"QDRANT_API_KEY"`
	TLS    bool   `env:"QDRANT_TLS" envDefault:"false"`
}

// Embedding holds the embedding provider settings.
type Embedding struct {
	Provider        string `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	Model           string `env:"EMBEDDING_MODEL"`
	Dimensions      int    `env:"EMBEDDING_DIMENSIONS"`
	Device          string `env:"EMBEDDING_DEVICE" envDefault:"cpu"`
	BatchSize       int    `env:"EMBEDDING_BATCH_SIZE" envDefault:"256"`
	APIKey          string `env:"EMBEDDING_API_KEY"`
	Endpoint        string `env:"EMBEDDING_ENDPOINT"`
	OllamaHost      string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AzureAPIKey     string `env:"AZURE_OPENAI_API_KEY"`
	AzureEndpoint   string `env:"AZURE_OPENAI_ENDPOINT"`
	AzureAPIVersion string `env:"AZURE_OPENAI_API_VERSION" envDefault:"2025-04-01-preview"`
}

// Retrieval holds the query settings.
type Retrieval struct {
	Instruction string `env:"QUERY_INSTRUCTION" envDefault:"Represent this sentence for searching relevant passages:"`
	TopK        int    `env:"TOP_K" envDefault:"3"`
}

// QueryInstruction returns the prefix to apply to queries, or "" when
// prefixing is disabled.
func (r Retrieval) QueryInstruction() string {
	if strings.EqualFold(strings.TrimSpace(r.Instruction), InstructionNone) {
		return ""
	}
	return r.Instruction
}

// FromEnv parses the environment into Settings, applying defaults for
// unset keys. The result is not validated; call [Settings.Validate].
func FromEnv() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return &s, nil
}

// Validate checks the settings for values no component can work with.
// All problems are reported together.
func (s *Settings) Validate() error {
	var errs []error

	if s.Documents.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", s.Documents.ChunkSize))
	}
	if s.Documents.ChunkOverlap < 0 || s.Documents.ChunkOverlap >= s.Documents.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", s.Documents.ChunkOverlap))
	}

	switch s.Store.Backend {
	case "chromem":
		if s.Store.Dir == "" {
			errs = append(errs, errors.New("STORE_DIR must not be empty for the chromem store"))
		} else if err := s.checkStoreDir(); err != nil {
			errs = append(errs, err)
		}
	case "qdrant":
		if s.Qdrant.Host == "" {
			errs = append(errs, errors.New("QDRANT_HOST must not be empty for the qdrant store"))
		}
	default:
		errs = append(errs, fmt.Errorf("VECTOR_STORE must be chromem or qdrant, got %q", s.Store.Backend))
	}
	if s.Store.Collection == "" {
		errs = append(errs, errors.New("COLLECTION_NAME must not be empty"))
	}

	switch s.Embedding.Provider {
	case "ollama", "openai", "azure":
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be ollama, openai or azure, got %q", s.Embedding.Provider))
	}
	if s.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative, got %d", s.Embedding.Dimensions))
	}

	if s.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", s.Embedding.BatchSize))
	}

	if s.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", s.Retrieval.TopK))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

// checkStoreDir rejects store directories whose wipe would take other data
// with it: the filesystem root, the working directory or one of its
// ancestors, and any directory holding the documents or the run ledger.
func (s *Settings) checkStoreDir() error {
	store, err := filepath.Abs(s.Store.Dir)
	if err != nil {
		return fmt.Errorf("STORE_DIR %q: %w", s.Store.Dir, err)
	}
	if filepath.Dir(store) == store {
		return fmt.Errorf("STORE_DIR must not be the filesystem root, got %q", s.Store.Dir)
	}
	if wd, err := os.Getwd(); err == nil && within(store, wd) {
		return fmt.Errorf("STORE_DIR must not contain the working directory, got %q", s.Store.Dir)
	}

	protected := map[string]string{"DOCUMENTS_DIR": s.Documents.Dir}
	if s.RunsEnabled() && s.RunsDB != ":memory:" {
		protected["DOCRAG_RUNS_DB"] = s.RunsDB
	}
	for key, path := range protected {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("%s %q: %w", key, path, err)
		}
		if within(store, abs) {
			return fmt.Errorf("STORE_DIR %q must not contain %s %q; it is removed on every ingestion", s.Store.Dir, key, path)
		}
	}
	return nil
}

// within reports whether path is dir or lies below it. Both are absolute.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RunsEnabled reports whether the run ledger is configured.
func (s *Settings) RunsEnabled() bool {
	return s.RunsDB != "" && s.RunsDB != RunsDisabled
}

// EnsureDirs creates the documents directory, the chromem store directory
// and the run ledger's parent directory when they do not exist yet.
func (s *Settings) EnsureDirs() error {
	dirs := []string{s.Documents.Dir}
	if s.Store.Backend == "chromem" {
		dirs = append(dirs, s.Store.Dir)
	}
	if s.RunsEnabled() && s.RunsDB != ":memory:" {
		dirs = append(dirs, filepath.Dir(s.RunsDB))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
