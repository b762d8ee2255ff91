package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
)

// pipelineReloader swaps the session manager's pipeline when the config
// file changes. A failed rebuild keeps the running pipeline.
type pipelineReloader struct {
	logger     *slog.Logger
	sessions   *session.Manager
	build      func(*config.Config) (*session.Pipeline, error)
	inProgress atomic.Bool
}

func newPipelineReloader(logger *slog.Logger, sessions *session.Manager, build func(*config.Config) (*session.Pipeline, error)) *pipelineReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &pipelineReloader{
		logger:   logger,
		sessions: sessions,
		build:    build,
	}
}

func (r *pipelineReloader) Reload(cfg *config.Config) {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("pipeline reload already in progress")
		return
	}
	defer r.inProgress.Store(false)

	next, err := r.build(cfg)
	if err != nil {
		r.logger.Error("failed to rebuild pipeline", "error", err)
		return
	}
	if next == nil {
		r.logger.Error("failed to rebuild pipeline", "error", "nil pipeline")
		return
	}

	r.sessions.SetPipeline(next)

	r.logger.Info("pipeline reloaded",
		"provider", next.Provider,
		"mode", cfg.Generation.Mode,
	)
}
