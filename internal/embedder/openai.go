package embedder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shuaige121/tool-gating-mcp/internal/logger"
)

// OpenAIBackend implements Backend against any OpenAI-compatible embeddings
// endpoint: OpenAI itself, vLLM, or Ollama's /v1/embeddings API.
type OpenAIBackend struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type openaiEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiEmbedResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIBackend creates an OpenAIBackend and verifies connectivity to
// baseURL. Examples:
//
//	vLLM:   NewOpenAIBackend("http://vllm-service:8000", "all-MiniLM-L6-v2", 384)
//	OpenAI: NewOpenAIBackend("https://api.openai.com", "text-embedding-3-small", 1536)
func NewOpenAIBackend(baseURL, model string, dimension int) (*OpenAIBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for OpenAI-compatible backend")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required for OpenAI-compatible backend")
	}
	if dimension == 0 {
		dimension = defaultDimension
	}

	logger.Infof("initializing OpenAI-compatible embedding backend (model: %s, url: %s)", model, baseURL)

	backend := &OpenAIBackend{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{},
	}

	resp, err := backend.client.Get(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", baseURL, err)
	}
	resp.Body.Close()

	return backend, nil
}

// Embed generates a unit-norm embedding for a single text via the
// /v1/embeddings endpoint.
func (o *OpenAIBackend) Embed(text string) ([]float32, error) {
	reqBody := openaiEmbedRequest{Model: o.model, Input: text}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := o.client.Post(o.baseURL+"/v1/embeddings", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}

	return normalize(embedResp.Data[0].Embedding), nil
}

// EmbedBatch embeds each text with a separate request.
func (o *OpenAIBackend) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the configured embedding dimension.
func (o *OpenAIBackend) Dimension() int {
	return o.dimension
}

// Close is a no-op; the HTTP client needs no explicit cleanup.
func (*OpenAIBackend) Close() error {
	return nil
}
