package main

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
)

type dbStatsProvider interface {
	DBStats() sql.DBStats
}

// startStorePoolMetrics publishes connection pool gauges for SQL-backed
// stores. Returns a stop function, or nil when the store has no pool.
func startStorePoolMetrics(ctx context.Context, provider dbStatsProvider, logger *slog.Logger, interval time.Duration) func() {
	if provider == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	metrics.UpdateStorePoolStats(provider.DBStats())

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateStorePoolStats(provider.DBStats())
			case <-ctx.Done():
				stop()
				return
			case <-stopCh:
				return
			}
		}
	}()

	logger.Debug("store pool metrics updater started", "interval", interval.String())
	return stop
}
