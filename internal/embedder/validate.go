package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docrag/internal/config"
)

// knownChatModelFragments identifies chat/completion models, which are not
// suitable for embedding.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// embeddingMarkers are name fragments of dedicated embedding models. A model
// carrying one of them is never reported as a chat model, even when its
// family name matches (e.g. "nomic-embed-text", "qwen3-embedding").
var embeddingMarkers = []string{"embed", "bge", "minilm", "e5-"}

// looksLikeChatModel reports whether model resembles a chat/completion model
// rather than an embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, marker := range embeddingMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, fragment := range knownChatModelFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check of the embedding configuration. It returns
// an error when the configuration is unusable (unknown provider, missing
// credentials, unknown device) and logs a warning when EMBEDDING_MODEL looks
// like a chat model.
func Validate(cfg config.Embedding, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Provider {
	case "ollama":
	case "openai":
		if firstNonEmpty(cfg.APIKey, cfg.OpenAIAPIKey) == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstNonEmpty(cfg.APIKey, cfg.AzureAPIKey) == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstNonEmpty(cfg.Endpoint, cfg.AzureEndpoint) == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown EMBEDDING_PROVIDER %q (valid values: ollama, openai, azure)", cfg.Provider)
	}

	switch cfg.Device {
	case "", DeviceCPU, DeviceGPU:
	default:
		return fmt.Errorf("embedder: unknown EMBEDDING_DEVICE %q (valid values: cpu, gpu)", cfg.Device)
	}
	if cfg.Device == DeviceGPU && cfg.Provider != "ollama" {
		log.Debug("embedder: EMBEDDING_DEVICE only applies to ollama, ignoring",
			slog.String("provider", cfg.Provider),
		)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. mxbai-embed-large, text-embedding-3-small"),
		)
	}

	return nil
}
