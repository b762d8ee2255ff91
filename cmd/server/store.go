package main

import (
	"fmt"
	"log/slog"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory/filestore"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory/inmem"
	postgresstore "github.com/OneChainTech/dynamic-cheatsheet/internal/memory/postgres"
	redisstore "github.com/OneChainTech/dynamic-cheatsheet/internal/memory/redis"
	sqlitestore "github.com/OneChainTech/dynamic-cheatsheet/internal/memory/sqlite"
)

func buildStore(cfg *config.Config, logger *slog.Logger) (memory.Store, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	var (
		store memory.Store
		err   error
	)
	switch cfg.Store.Backend {
	case config.BackendFile:
		store, err = filestore.New(cfg.Store.Dir)
	case config.BackendMemory:
		store = inmem.New()
	case config.BackendRedis:
		store, err = redisstore.New(cfg.Store.Redis)
	case config.BackendPostgres:
		store, err = postgresstore.New(cfg.Store.Postgres)
	case config.BackendSQLite:
		store, err = sqlitestore.New(cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Backend, err)
	}

	logger.Info("memory store ready", "backend", cfg.Store.Backend)
	return store, nil
}
