package main

import (
	"context"
	"strings"
	"testing"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/secret"
)

func TestResolveSecrets_ResolvesConfiguredFields(t *testing.T) {
	t.Setenv("DCS_TEST_PROVIDER_KEY", "sk-resolved")
	t.Setenv("DCS_TEST_EXTRA_KEY", "dcs_extra")

	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "env://DCS_TEST_PROVIDER_KEY"
	cfg.Auth.JWTSecret = "plain-secret"
	cfg.Auth.APIKeys = []string{"dcs_literal", "env://DCS_TEST_EXTRA_KEY"}

	manager := secret.NewManager()
	defer manager.Close()

	if err := resolveSecrets(context.Background(), manager, cfg); err != nil {
		t.Fatalf("resolveSecrets() error = %v", err)
	}

	if cfg.Provider.APIKey != "sk-resolved" {
		t.Fatalf("provider.api_key = %q, want %q", cfg.Provider.APIKey, "sk-resolved")
	}
	if cfg.Auth.JWTSecret != "plain-secret" {
		t.Fatalf("auth.jwt_secret = %q, want literal passthrough", cfg.Auth.JWTSecret)
	}
	want := []string{"dcs_literal", "dcs_extra"}
	if len(cfg.Auth.APIKeys) != len(want) || cfg.Auth.APIKeys[0] != want[0] || cfg.Auth.APIKeys[1] != want[1] {
		t.Fatalf("auth.api_keys = %v, want %v", cfg.Auth.APIKeys, want)
	}
}

func TestResolveSecrets_NamesFailingField(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "env://DCS_TEST_DEFINITELY_UNSET"

	manager := secret.NewManager()
	defer manager.Close()

	err := resolveSecrets(context.Background(), manager, cfg)
	if err == nil || !strings.Contains(err.Error(), "provider.api_key") {
		t.Fatalf("resolveSecrets() error = %v, want provider.api_key in message", err)
	}
}

func TestNewSecretManager_WithoutVault(t *testing.T) {
	cfg := config.DefaultConfig()

	manager, err := newSecretManager(cfg, storeLogger())
	if err != nil {
		t.Fatalf("newSecretManager() error = %v", err)
	}
	if manager == nil {
		t.Fatal("expected a manager")
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
