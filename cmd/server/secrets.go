package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/secret"
)

// vaultCacheTTL bounds how long resolved vault values are reused. Reloads
// within the window see the cached value.
const vaultCacheTTL = 5 * time.Minute

func newSecretManager(cfg *config.Config, logger *slog.Logger) (*secret.Manager, error) {
	manager := secret.NewManager()

	if cfg.Vault.Enabled {
		vault, err := secret.NewVaultProvider(cfg.Vault, logger)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("init vault provider: %w", err)
		}
		manager.Register("vault", secret.NewCachedProvider(vault, vaultCacheTTL))
		logger.Info("vault secret provider registered", "address", cfg.Vault.Address)
	}

	return manager, nil
}

// resolveSecrets replaces secret references (env://, vault://) in cfg with
// their values. Plain strings pass through untouched. cfg should be a
// private copy; resolution writes into it.
func resolveSecrets(ctx context.Context, manager *secret.Manager, cfg *config.Config) error {
	fields := []struct {
		name string
		ref  *string
	}{
		{"provider.api_key", &cfg.Provider.APIKey},
		{"store.redis.password", &cfg.Store.Redis.Password},
		{"store.postgres.password", &cfg.Store.Postgres.Password},
		{"auth.jwt_secret", &cfg.Auth.JWTSecret},
		{"archive.access_key", &cfg.Archive.AccessKey},
		{"archive.secret_key", &cfg.Archive.SecretKey},
	}
	for _, f := range fields {
		val, err := manager.Resolve(ctx, *f.ref)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.name, err)
		}
		*f.ref = val
	}

	keys, err := manager.ResolveSlice(ctx, cfg.Auth.APIKeys)
	if err != nil {
		return fmt.Errorf("resolve auth.api_keys: %w", err)
	}
	cfg.Auth.APIKeys = keys

	return nil
}
