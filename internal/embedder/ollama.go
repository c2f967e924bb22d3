package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required; Ollama runs locally.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "mxbai-embed-large").
	model string
	// options carries runner options such as num_gpu.
	options map[string]any
	// batch caps the inputs of one /api/embed request.
	batch batcher
	// client is the shared HTTP client. Large ingestion batches can take a
	// while on CPU, hence the generous timeout.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "mxbai-embed-large").
	Model string
	// Device selects the compute device: "cpu" pins the model to the CPU
	// by offloading zero layers to the GPU; "gpu" or empty lets Ollama decide.
	Device string
	// BatchSize caps the inputs of one request (0 = budget.DefaultMaxItems).
	BatchSize int
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	e := &OllamaEmbedder{
		host:   cfg.Host,
		model:  cfg.Model,
		batch:  batcher{maxItems: cfg.BatchSize},
		client: &http.Client{Timeout: 5 * time.Minute},
	}
	if cfg.Device == DeviceCPU {
		e.options = map[string]any{"num_gpu": 0}
	}
	return e
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model   string         `json:"model"`
	Input   []string       `json:"input"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts texts into their corresponding embeddings, splitting large
// inputs into several requests. The returned slice is parallel to the input.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.batch.embed(ctx, texts, e.embedRequest)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return vecs, nil
}

// embedRequest sends one /api/embed request.
func (e *OllamaEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{
		Model:   e.model,
		Input:   texts,
		Options: e.options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && result.Error != "" {
			msg = result.Error
		}
		return nil, errors.New(msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	return result.Embeddings, nil
}

// Ping checks that the Ollama server is reachable.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("ollama embedder: create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama embedder: unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama embedder: ping returned HTTP %d", resp.StatusCode)
	}
	return nil
}
