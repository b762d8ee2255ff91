package secret

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig holds connection and authentication settings for the Vault
// provider.
type VaultConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	// AuthMethod selects how to authenticate: "token" or "approle".
	AuthMethod string `yaml:"auth_method"`
	Token      string `yaml:"token"`
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	CACert     string `yaml:"ca_cert"`
}

// VaultProvider reads secrets from HashiCorp Vault. Renewable tokens are
// kept alive by a background renewer until Close.
type VaultProvider struct {
	client *vault.Client
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewVaultProvider connects to Vault and authenticates with the configured
// method.
func NewVaultProvider(cfg VaultConfig, logger *slog.Logger) (*VaultProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	if cfg.CACert != "" {
		if err := vcfg.ConfigureTLS(&vault.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	p := &VaultProvider{
		client: client,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			return nil, fmt.Errorf("vault token auth requires a token")
		}
		client.SetToken(cfg.Token)
	case "approle":
		login, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login: %w", err)
		}
		if login == nil || login.Auth == nil {
			return nil, fmt.Errorf("vault approle login returned no auth info")
		}
		client.SetToken(login.Auth.ClientToken)

		p.wg.Add(1)
		go p.renewToken(login.Auth)
	default:
		return nil, fmt.Errorf("unknown vault auth method %q", cfg.AuthMethod)
	}

	return p, nil
}

// Get reads one secret. Paths take the form "path/to/secret#field"; the
// field defaults to "value". KV v2 responses wrap payloads in a "data" map,
// which is unwrapped transparently.
func (p *VaultProvider) Get(ctx context.Context, path string) (string, error) {
	secretPath := path
	field := "value"
	if idx := strings.LastIndex(path, "#"); idx != -1 {
		secretPath = path[:idx]
		field = path[idx+1:]
	}

	read, err := p.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", secretPath, err)
	}
	if read == nil || read.Data == nil {
		return "", fmt.Errorf("vault secret %q not found", secretPath)
	}

	data := read.Data
	if wrapped, ok := data["data"]; ok {
		if nested, ok := wrapped.(map[string]interface{}); ok {
			data = nested
		}
	}

	val, ok := data[field]
	if !ok {
		return "", fmt.Errorf("field %q not found in vault secret %q", field, secretPath)
	}
	return fmt.Sprintf("%v", val), nil
}

// Close stops the token renewer and waits for it to exit.
func (p *VaultProvider) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}

func (p *VaultProvider) renewToken(auth *vault.SecretAuth) {
	defer p.wg.Done()
	if !auth.Renewable {
		return
	}

	watcher, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("vault lifetime watcher setup failed", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				p.logger.Error("vault token renewal stopped", "error", err)
			}
			return
		case renewal := <-watcher.RenewCh():
			p.logger.Debug("vault token renewed", "lease_duration", renewal.Secret.LeaseDuration)
		}
	}
}
