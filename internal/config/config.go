// Package config provides layered configuration for docrag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCRAG_CONFIG environment variable
//  3. ~/.docrag/config.yaml
//  4. ./docrag.yaml
//
// [Load] exports the YAML values into the environment; [FromEnv] then reads
// the environment into the typed [Settings] tree.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Documents configures the source folder and chunking.
	Documents DocumentsConfig `yaml:"documents"`

	// Store configures the vector store backend.
	Store StoreConfig `yaml:"store"`

	// Qdrant configures the Qdrant connection when store.backend is qdrant.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configures query resolution.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP search server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Runs configures the ingestion run ledger.
	Runs RunsConfig `yaml:"runs"`
}

// DocumentsConfig holds loader and chunker settings.
type DocumentsConfig struct {
	// Dir is the documents root.
	Dir string `yaml:"dir"`
	// ChunkSize is the window length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of characters shared by consecutive windows.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// StripMarkdown renders markdown to plain text before chunking.
	StripMarkdown bool `yaml:"strip_markdown"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	// Backend selects the store: chromem or qdrant.
	Backend string `yaml:"backend"`
	// Dir is the chromem persistence directory.
	Dir string `yaml:"dir"`
	// Compress gzips chromem files on disk.
	Compress bool `yaml:"compress"`
	// Collection is the collection name.
	Collection string `yaml:"collection"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions pins the expected embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// Device selects cpu or gpu for local models.
	Device string `yaml:"device"`
	// BatchSize caps the inputs of one embedding request.
	BatchSize int `yaml:"batch_size"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// OllamaHost is the Ollama server URL.
	OllamaHost string `yaml:"ollama_host"`
	// Azure holds Azure OpenAI settings.
	Azure AzureConfig `yaml:"azure"`
}

// AzureConfig holds Azure OpenAI settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// RetrievalConfig holds query settings.
type RetrievalConfig struct {
	// Instruction is prepended to queries before embedding ("none" disables).
	Instruction string `yaml:"instruction"`
	// TopK is the default result count.
	TopK int `yaml:"top_k"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// APIKey is the Bearer token for API authentication. Prefer env var DOCRAG_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// RunsConfig holds run ledger settings.
type RunsConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"DOCUMENTS_DIR", func(c *Config) string { return c.Documents.Dir }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Documents.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Documents.ChunkOverlap) }},
	{"MARKDOWN_STRIP", func(c *Config) string { return boolStr(c.Documents.StripMarkdown) }},
	{"VECTOR_STORE", func(c *Config) string { return c.Store.Backend }},
	{"STORE_DIR", func(c *Config) string { return c.Store.Dir }},
	{"STORE_COMPRESS", func(c *Config) string { return boolStr(c.Store.Compress) }},
	{"COLLECTION_NAME", func(c *Config) string { return c.Store.Collection }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_DEVICE", func(c *Config) string { return c.Embedding.Device }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Embedding.OllamaHost }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Embedding.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Embedding.Azure.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Embedding.Azure.APIVersion }},
	{"QUERY_INSTRUCTION", func(c *Config) string { return c.Retrieval.Instruction }},
	{"TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"DOCRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"DOCRAG_RUNS_DB", func(c *Config) string { return c.Runs.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists. An
// explicit path that does not exist is an error, since the operator asked
// for it by name.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("DOCRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".docrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("docrag.yaml"); err == nil {
		return "docrag.yaml", nil
	}

	return "", nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
