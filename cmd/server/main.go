// Package main is the entry point for the dynamic cheatsheet service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/api"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/archive"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/mcpserver"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/observability"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	genKey := flag.Bool("genkey", false, "generate an API key and exit")
	flag.Parse()

	if *genKey {
		if err := runGenerateKey(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Bootstrap logger; replaced once the config names level and format.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// config.env mirrors the original deployment layout. Loaded before the
	// config file so ${VAR} expansion and MCP_HOST/MCP_PORT overrides see it.
	if _, err := os.Stat("config.env"); err == nil {
		if err := godotenv.Load("config.env"); err != nil {
			logger.Warn("failed to load config.env", "error", err)
		}
	}

	logger.Info("starting dynamic cheatsheet service", "version", version)

	cfgManager, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := cfgManager.Get()

	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.Warn("invalid log level, using info", "error", err)
	}
	appLogger := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: cfg.Logging.Format != "text",
	}, observability.NewRedactor())
	logger = appLogger.Slog()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	secrets, err := newSecretManager(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize secret providers", "error", err)
		os.Exit(1)
	}

	// Secrets resolve into a private copy so the manager's config keeps the
	// references for the next reload.
	runCfg := *cfg
	if err := resolveSecrets(ctx, secrets, &runCfg); err != nil {
		logger.Error("failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	tracerProvider, err := observability.InitTracing(ctx, runCfg.Tracing)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if runCfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", runCfg.Tracing.Endpoint)
	}

	otelMetrics, err := observability.InitOTelMetrics(ctx, runCfg.OTelMetrics)
	if err != nil {
		logger.Warn("otel metrics disabled", "error", err)
	}
	otelLogs, err := observability.InitOTelLogs(ctx, runCfg.OTelLogs)
	if err != nil {
		logger.Warn("otel logs disabled", "error", err)
	}

	store, err := buildStore(&runCfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	registry := newProviderRegistry()

	pipe, err := buildPipeline(&runCfg, registry, store, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	var archiver *archive.Archiver
	if runCfg.Archive.Enabled {
		archiver, err = archive.New(ctx, archive.Config{
			Bucket:        runCfg.Archive.Bucket,
			Prefix:        runCfg.Archive.Prefix,
			Region:        runCfg.Archive.Region,
			Endpoint:      runCfg.Archive.Endpoint,
			AccessKey:     runCfg.Archive.AccessKey,
			SecretKey:     runCfg.Archive.SecretKey,
			FlushInterval: runCfg.Archive.FlushInterval,
			QueueSize:     runCfg.Archive.QueueSize,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize archiver", "error", err)
			os.Exit(1)
		}
		logger.Info("snapshot archiver enabled", "bucket", runCfg.Archive.Bucket)
	}

	opts := []session.Option{
		session.WithOTelMetrics(otelMetrics),
		session.WithOTelLogs(otelLogs),
	}
	if archiver != nil {
		opts = append(opts, session.WithArchiver(archiver))
	}
	sessions := session.NewManager(store, pipe, runCfg.Session, logger, opts...)

	var stopPoolMetrics func()
	if statsProvider, ok := store.(dbStatsProvider); ok {
		stopPoolMetrics = startStorePoolMetrics(ctx, statsProvider, logger, 30*time.Second)
	}

	reloader := newPipelineReloader(logger, sessions, func(next *config.Config) (*session.Pipeline, error) {
		resolved := *next
		if err := resolveSecrets(ctx, secrets, &resolved); err != nil {
			return nil, err
		}
		return buildPipeline(&resolved, registry, store, logger)
	})
	cfgManager.OnChange(reloader.Reload)

	handler := api.NewHandler(sessions, logger, api.WithConfigStatus(cfgManager.Status))

	mux, err := buildMux(&runCfg, handler)
	if err != nil {
		logger.Error("failed to build routes", "error", err)
		os.Exit(1)
	}

	stack, stackCleanup, err := buildMiddlewareStack(&runCfg, logger)
	if err != nil {
		logger.Error("failed to build middleware", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", runCfg.Server.Port),
		Handler:      stack(mux),
		ReadTimeout:  runCfg.Server.ReadTimeout,
		WriteTimeout: runCfg.Server.WriteTimeout,
		IdleTimeout:  runCfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "port", runCfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	var mcpServer *mcpserver.Server
	if runCfg.MCP.Enabled {
		mcpServer = mcpserver.New(sessions, runCfg.MCP.Host, runCfg.MCP.Port, version, logger)
		go func() {
			if err := mcpServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("mcp server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("mcp server shutdown error", "error", err)
		}
	}

	stackCleanup()
	if stopPoolMetrics != nil {
		stopPoolMetrics()
	}
	if archiver != nil {
		if err := archiver.Close(shutdownCtx); err != nil {
			logger.Error("archiver close error", "error", err)
		}
	}

	if err := cfgManager.Close(); err != nil {
		logger.Error("config watcher close error", "error", err)
	}
	if err := secrets.Close(); err != nil {
		logger.Error("secret provider close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}
	if err := otelMetrics.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel metrics shutdown error", "error", err)
	}
	if err := otelLogs.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel logs shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
