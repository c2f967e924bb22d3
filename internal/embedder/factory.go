package embedder

import (
	"fmt"
	"strings"

	"github.com/54b3r/docrag/internal/config"
	"github.com/54b3r/docrag/internal/rag"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel pairs with rag.DefaultInstruction: mxbai-embed-large
	// expects queries to carry the retrieval prompt and documents to be bare.
	defaultOllamaModel = "mxbai-embed-large"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of mxbai-embed-large.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 1024
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// Supported embedding devices.
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// DefaultModel returns the model used for provider when EMBEDDING_MODEL is unset.
func DefaultModel(provider string) string {
	if provider == "ollama" {
		return defaultOllamaModel
	}
	return defaultOpenAIModel
}

// DefaultDimensions returns the vector size for cfg. An explicit
// EMBEDDING_DIMENSIONS always wins; otherwise the default model's dimension
// is returned when the model is the default, and 0 (unknown) when it is not.
func DefaultDimensions(cfg config.Embedding) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	if cfg.Model != "" && cfg.Model != DefaultModel(cfg.Provider) {
		return 0
	}
	switch cfg.Provider {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a rag.Embedder for the configured provider.
//
// Resolution order per backend:
//
//  1. EMBEDDING_MODEL overrides the default model for the backend
//  2. EMBEDDING_API_KEY overrides the backend's own key variable
//  3. EMBEDDING_ENDPOINT overrides the backend's own host/endpoint variable
//  4. EMBEDDING_DIMENSIONS requests a specific vector size (openai/azure)
func New(cfg config.Embedding) (rag.Embedder, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case "ollama":
		host := firstNonEmpty(cfg.Endpoint, cfg.OllamaHost, "http://localhost:11434")
		return NewOllamaEmbedder(&OllamaConfig{
			Host:   strings.TrimRight(host, "/"),
			Model:     model,
			Device:    cfg.Device,
			BatchSize: cfg.BatchSize,
		}), nil

	case "openai":
		apiKey := firstNonEmpty(cfg.APIKey, cfg.OpenAIAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(firstNonEmpty(cfg.Endpoint, defaultOpenAIBaseURL), "/"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}), nil

	case "azure":
		apiKey := firstNonEmpty(cfg.APIKey, cfg.AzureAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(cfg.Endpoint, cfg.AzureEndpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.AzureAPIVersion,
			BatchSize:  cfg.BatchSize,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: ollama, openai, azure)", cfg.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
