// Package embedder implements rag.Embedder over plain HTTP for the embedding
// backends docrag supports: a local Ollama server, OpenAI, and Azure OpenAI.
// No vendor SDK is involved; each client is a JSON request and response.
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

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// baseURL is the API base URL without the /embeddings suffix.
	baseURL string
	// apiKey is sent as a Bearer token, or in the api-key header on Azure.
	apiKey string
	// model is the embedding model name, or the deployment name on Azure.
	model string
	// dimensions is the requested vector length (0 = model default).
	dimensions int
	// azure switches the URL layout and auth header to Azure OpenAI.
	azure bool
	// apiVersion is the Azure api-version query parameter.
	apiVersion string
	// batch keeps each request under the input and token limits.
	batch batcher
	// client is the shared HTTP client.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions is the requested vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// BatchSize caps the inputs of one request (0 = budget.DefaultMaxItems).
	BatchSize int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		batch:      batcher{maxItems: cfg.BatchSize},
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// endpoint returns the embeddings URL for the configured flavour.
func (e *OpenAIEmbedder) endpoint() string {
	if e.azure {
		return e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
	}
	return e.baseURL + "/embeddings"
}

// Embed converts texts into their corresponding embeddings, splitting large
// inputs into several requests. The returned slice is parallel to the input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.batch.embed(ctx, texts, e.embedRequest)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return vecs, nil
}

// embedRequest sends one embeddings request.
func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(openaiEmbedRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result openaiEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && result.Error != nil {
			msg = result.Error.Message
		}
		return nil, errors.New(msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// Data may arrive out of order; place each vector by its index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("index %d out of range [0, %d)", d.Index, len(texts))
		}
		if embeddings[d.Index] != nil {
			return nil, fmt.Errorf("duplicate index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}

	return embeddings, nil
}
