// Package ollama implements the Ollama provider adapter for locally hosted
// models. Ollama exposes an OpenAI-compatible endpoint, so the adapter
// delegates to the openai package with its own Info.
package ollama

import (
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider/openai"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "ollama"

	// DefaultBaseURL is the default local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434/v1"
)

// New creates a new Ollama provider instance. Ollama runs without API keys;
// any configured key is ignored.
func New(cfg provider.Config) (provider.Provider, error) {
	return openai.NewWithInfo(cfg, openai.Info{
		Name:           ProviderName,
		DefaultBaseURL: DefaultBaseURL,
	})
}
