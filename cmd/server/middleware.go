package main

import (
	"log/slog"
	"net/http"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/auth"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/observability"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/ratelimit"
)

// skipPaths lists endpoints exempt from auth and rate limiting: probes and
// the scrape target must stay reachable without credentials.
func skipPaths(cfg *config.Config) []string {
	paths := []string{"/health/live", "/health/ready"}
	if cfg.Metrics.Enabled {
		paths = append(paths, cfg.Metrics.Path)
	}
	return paths
}

func buildMiddlewareStack(cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, func(), error) {
	if cfg == nil {
		return nil, nil, errNilConfig
	}

	var authn *auth.Authenticator
	if cfg.Auth.Enabled {
		authn = auth.New(auth.Config{
			Enabled:   true,
			APIKeys:   cfg.Auth.APIKeys,
			JWTSecret: cfg.Auth.JWTSecret,
			SkipPaths: skipPaths(cfg),
			Logger:    logger,
		})
		logger.Info("api key authentication enabled", "keys", len(cfg.Auth.APIKeys), "jwt", cfg.Auth.JWTSecret != "")
	}

	var limiter *ratelimit.Limiter
	cleanup := func() {}
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.BurstSize,
			SkipPaths:         skipPaths(cfg),
		})
		cleanup = limiter.Close
		logger.Info("rate limiting enabled", "requests_per_minute", cfg.RateLimit.RequestsPerMinute)
	}

	// Auth sits inside the chain so the limiter can key on the principal;
	// metrics wrap both so rejected requests still show up.
	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}
		handler := next
		if limiter != nil {
			handler = limiter.Middleware(handler)
		}
		if authn != nil {
			handler = authn.Middleware(handler)
		}
		handler = metrics.Middleware(handler)
		handler = observability.RequestIDMiddleware(handler)
		handler = corsMiddleware(cfg.CORS, handler)
		return handler
	}, cleanup, nil
}
