// Package embedder provides the text-to-vector contract used by the
// Discovery engine and the Proxy, plus a small set of pluggable backends.
package embedder

import (
	"fmt"
	"sync"

	"github.com/shuaige121/tool-gating-mcp/internal/logger"
)

const (
	// BackendTypeFake is a zero-dependency deterministic backend, used when
	// no real embedding service is configured and in tests.
	BackendTypeFake = "fake"

	// BackendTypeOllama talks to a local Ollama embeddings endpoint.
	BackendTypeOllama = "ollama"

	// BackendTypeOpenAI talks to any OpenAI-compatible embeddings endpoint
	// (vLLM, Ollama's v1 API, OpenAI itself).
	BackendTypeOpenAI = "openai"

	// defaultDimension matches all-MiniLM-L6-v2, a common local default.
	defaultDimension = 384
)

// Backend is the pluggable embedding implementation. embed(text) -> vector
// is a pure function from the core's perspective; the backend may reach an
// external model server to compute it.
type Backend interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// Config selects and configures an Embedder's backend.
type Config struct {
	// BackendType is one of BackendTypeFake, BackendTypeOllama,
	// BackendTypeOpenAI. Defaults to BackendTypeFake.
	BackendType string
	// BaseURL is the embedding service's base URL (ollama/openai backends).
	BaseURL string
	// Model is the embedding model name (ollama/openai backends).
	Model string
	// Dimension is the fixed output dimension D. Defaults to 384.
	Dimension int
}

// Embedder wraps a Backend with the process-lifetime contract from the
// component design: a fixed dimension, L2-normalized output, and
// determinism within a process. It retries a failed per-call embedding once
// before surfacing the error — model-load failure at construction time is
// not retried, it fails the process fast.
type Embedder struct {
	mu        sync.Mutex
	backend   Backend
	dimension int
}

// New constructs an Embedder from cfg. If a real backend (ollama/openai) is
// requested and fails to initialize — for example the service is
// unreachable — New returns an error rather than silently falling back: the
// component design requires the process to fail fast on embedder
// unavailability at startup.
func New(cfg Config) (*Embedder, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = defaultDimension
	}
	if cfg.BackendType == "" {
		cfg.BackendType = BackendTypeFake
	}

	var backend Backend
	var err error

	switch cfg.BackendType {
	case BackendTypeFake:
		backend = NewFakeBackend(cfg.Dimension)
	case BackendTypeOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		backend, err = NewOllamaBackend(baseURL, model, cfg.Dimension)
	case BackendTypeOpenAI:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedder: base URL is required for %s backend", cfg.BackendType)
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		backend, err = NewOpenAIBackend(cfg.BaseURL, model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("embedder: unknown backend type %q (supported: fake, ollama, openai)", cfg.BackendType)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to initialize %s backend: %w", cfg.BackendType, err)
	}

	logger.Infof("embedder backend ready: %s (dimension=%d)", cfg.BackendType, backend.Dimension())

	return &Embedder{backend: backend, dimension: backend.Dimension()}, nil
}

// Dimension returns D, fixed for the process lifetime.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed computes a unit-norm vector for text, retrying once on backend
// failure before surfacing the error.
func (e *Embedder) Embed(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vec, err := e.backend.Embed(text)
	if err != nil {
		logger.Warnf("embedder: embed failed, retrying once: %v", err)
		vec, err = e.backend.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("embedder: embed failed after retry: %w", err)
		}
	}
	return vec, nil
}

// EmbedBatch computes vectors for multiple texts in one backend call where
// the backend supports it.
func (e *Embedder) EmbedBatch(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vecs, err := e.backend.EmbedBatch(texts)
	if err != nil {
		logger.Warnf("embedder: batch embed failed, retrying once: %v", err)
		vecs, err = e.backend.EmbedBatch(texts)
		if err != nil {
			return nil, fmt.Errorf("embedder: batch embed failed after retry: %w", err)
		}
	}
	return vecs, nil
}

// Close releases the backend's resources.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}
