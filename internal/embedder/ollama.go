package embedder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/shuaige121/tool-gating-mcp/internal/logger"
)

// OllamaBackend implements Backend against a local Ollama server's native
// embeddings API. Ollama must already be running (ollama serve).
type OllamaBackend struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaBackend creates an OllamaBackend and verifies connectivity. The
// embedder's fail-fast-at-startup contract depends on this connectivity
// check: a dead Ollama server surfaces as a constructor error, not as a
// silent fallback.
func NewOllamaBackend(baseURL, model string, dimension int) (*OllamaBackend, error) {
	logger.Infof("initializing Ollama embedding backend (model: %s, url: %s)", model, baseURL)

	backend := &OllamaBackend{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{},
	}

	resp, err := backend.client.Get(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w (is 'ollama serve' running?)", baseURL, err)
	}
	resp.Body.Close()

	return backend, nil
}

// Embed generates a unit-norm embedding for a single text.
func (o *OllamaBackend) Embed(text string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{Model: o.model, Prompt: text}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := o.client.Post(o.baseURL+"/api/embeddings", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama API returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vec := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		vec[i] = float32(v)
	}
	return normalize(vec), nil
}

// EmbedBatch embeds each text with a separate request; Ollama's native API
// has no batch endpoint.
func (o *OllamaBackend) EmbedBatch(texts []string) ([][]float32, error) {
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
func (o *OllamaBackend) Dimension() int {
	return o.dimension
}

// Close is a no-op; the HTTP client needs no explicit cleanup.
func (*OllamaBackend) Close() error {
	return nil
}

// normalize L2-normalizes vec in place and returns it.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
