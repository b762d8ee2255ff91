package main

import (
	"fmt"
	"log/slog"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/curator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/generator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider/anthropic"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider/ollama"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider/openai"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider/scripted"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/selector"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
)

func newProviderRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.RegisterFactory("openai", openai.New)
	registry.RegisterFactory("anthropic", anthropic.New)
	registry.RegisterFactory("ollama", ollama.New)
	registry.RegisterFactory("scripted", scripted.NewFromConfig)
	return registry
}

// buildPipeline assembles the prompt-dependent collaborators from config.
// Called at startup and again on every config reload.
func buildPipeline(cfg *config.Config, registry *provider.Registry, store memory.Store, logger *slog.Logger) (*session.Pipeline, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	set, err := template.LoadSet(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	prov, err := registry.Create(cfg.Provider)
	if err != nil {
		return nil, err
	}

	inv := invoker.New(prov, cfg.Invoker, logger)
	sel := buildSelector(cfg, prov, logger)

	return &session.Pipeline{
		Templates: set,
		Generator: generator.New(store, sel, inv, set, cfg.Generation, logger),
		Curator:   curator.New(store, inv, set.Curator, logger),
		Provider:  cfg.Provider.Type,
	}, nil
}

func buildSelector(cfg *config.Config, prov provider.Provider, logger *slog.Logger) *selector.Selector {
	if cfg.Selector.Scorer != "embedding" {
		return selector.New(selector.NewLexicalScorer())
	}

	if embedder, ok := prov.(selector.Embedder); ok {
		logger.Info("retrieval scorer ready", "scorer", "embedding", "provider", prov.Name())
		return selector.New(selector.NewEmbeddingScorer(embedder))
	}

	logger.Warn("provider lacks embedding support, using deterministic embedder",
		"provider", prov.Name(), "dims", cfg.Selector.EmbeddingDims)
	return selector.New(selector.NewEmbeddingScorer(selector.NewDeterministicEmbedder(cfg.Selector.EmbeddingDims)))
}
