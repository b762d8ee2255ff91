// Package provider defines the interface to external model endpoints.
// Each backend (OpenAI, Anthropic, Ollama, ...) adapts its wire format
// behind the same prompt-in, text-out seam; callers never branch on the
// concrete variant.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Provider is the single seam to a text-generation backend: one prompt in,
// one completion out. Implementations map transport and API failures onto
// the service error types so the invoker can classify them for retry.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Complete sends the prompt and returns the model's text output.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder is the optional embedding capability, used by the embedding
// scorer. Providers that cannot embed simply do not implement it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config carries the settings shared by all provider adapters.
type Config struct {
	// Type selects the registered factory (e.g., "openai").
	Type string `yaml:"type"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// APIKey authenticates against the endpoint. May be empty for local
	// backends such as Ollama.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the adapter's default endpoint.
	BaseURL string `yaml:"base_url"`

	// EmbeddingModel names the embedding model, when the variant supports
	// embeddings.
	EmbeddingModel string `yaml:"embedding_model"`

	// MaxTokens caps the completion length. Zero means adapter default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is passed through when non-nil.
	Temperature *float64 `yaml:"temperature"`

	// HTTPClient overrides the transport. Used by tests.
	HTTPClient *http.Client `yaml:"-"`
}

// Factory creates a provider instance from config.
type Factory func(cfg Config) (Provider, error)

// Registry manages provider factories. It allows dynamic registration of
// new provider types.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers a factory function for a provider type.
// This should be called during initialization to register all supported
// providers.
func (r *Registry) RegisterFactory(providerType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

// Create builds a provider instance using the registered factory.
func (r *Registry) Create(cfg Config) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", cfg.Type, err)
	}
	return p, nil
}

// Types returns all registered provider types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
