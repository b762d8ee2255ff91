// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/generator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	postgresstore "github.com/OneChainTech/dynamic-cheatsheet/internal/memory/postgres"
	redisstore "github.com/OneChainTech/dynamic-cheatsheet/internal/memory/redis"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/observability"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/secret"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
)

// Store backend names accepted in StoreConfig.Backend.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config represents the complete service configuration.
type Config struct {
	Server      ServerConfig                    `yaml:"server"`
	MCP         MCPConfig                       `yaml:"mcp"`
	Provider    provider.Config                 `yaml:"provider"`
	Invoker     invoker.Config                  `yaml:"invoker"`
	Generation  generator.Config                `yaml:"generation"`
	Selector    SelectorConfig                  `yaml:"selector"`
	Session     session.Config                  `yaml:"session"`
	Store       StoreConfig                     `yaml:"store"`
	Templates   template.Config                 `yaml:"templates"`
	Auth        AuthConfig                      `yaml:"auth"`
	RateLimit   RateLimitConfig                 `yaml:"rate_limit"`
	CORS        CORSConfig                      `yaml:"cors"`
	Archive     ArchiveConfig                   `yaml:"archive"`
	Vault       secret.VaultConfig              `yaml:"vault"`
	Logging     LoggingConfig                   `yaml:"logging"`
	Metrics     MetricsConfig                   `yaml:"metrics"`
	Tracing     observability.TracingConfig     `yaml:"tracing"`
	OTelMetrics observability.OTelMetricsConfig `yaml:"otel_metrics"`
	OTelLogs    observability.OTelLogsConfig    `yaml:"otel_logs"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// MCPConfig contains the MCP SSE endpoint settings. Host and port can be
// overridden with the MCP_HOST and MCP_PORT environment variables.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// SelectorConfig picks the retrieval scorer.
type SelectorConfig struct {
	// Scorer is "lexical" or "embedding". The embedding scorer requires a
	// provider that supports embeddings and falls back to a deterministic
	// hash embedder when embedding_dims is set without one.
	Scorer        string `yaml:"scorer"`
	EmbeddingDims int    `yaml:"embedding_dims"`
}

// StoreConfig selects and parameterizes the memory store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// Dir is the data directory for the file backend.
	Dir string `yaml:"dir"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	Redis    redisstore.Config    `yaml:"redis"`
	Postgres postgresstore.Config `yaml:"postgres"`
}

// AuthConfig contains API authentication settings. Values may be secret
// references (env://VAR, vault://path#field) resolved at startup.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// APIKeys are accepted as X-API-Key or bearer values.
	APIKeys []string `yaml:"api_keys"`
	// JWTSecret enables HS256 bearer token verification when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// RateLimitConfig defines per-key rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// CORSConfig controls cross-origin access to the HTTP API.
type CORSConfig struct {
	Enabled bool `yaml:"enabled"`
	// AllowAllOrigins echoes any origin back. With credentials enabled the
	// echo stays per-origin instead of the wildcard.
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowOrigins     []string      `yaml:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// ArchiveConfig controls periodic S3 snapshot archival.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
	// Endpoint overrides the S3 endpoint for MinIO-compatible stores.
	Endpoint string `yaml:"endpoint"`
	// AccessKey and SecretKey may be secret references; empty values use
	// the ambient AWS credential chain.
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		MCP: MCPConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
		},
		Provider: provider.Config{
			Type:   "openai",
			Model:  "gpt-4o-mini",
			APIKey: "env://OPENAI_API_KEY",
		},
		Invoker:    invoker.DefaultConfig(),
		Generation: generator.DefaultConfig(),
		Selector: SelectorConfig{
			Scorer: "lexical",
		},
		Session: session.DefaultConfig(),
		Store: StoreConfig{
			Backend:    BackendFile,
			Dir:        "data",
			SQLitePath: "data/cheatsheet.db",
			Postgres:   postgresstore.DefaultConfig(),
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		CORS: CORSConfig{
			Enabled:      false,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
			MaxAge:       10 * time.Minute,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Prefix:        "cheatsheets",
			FlushInterval: 5 * time.Minute,
			QueueSize:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing:     observability.DefaultTracingConfig(),
		OTelMetrics: observability.DefaultOTelMetricsConfig(),
		OTelLogs:    observability.DefaultOTelLogsConfig(),
	}
}

// Load returns the defaults when path is empty, otherwise the parsed file.
// Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromFile(path)
}

// LoadFromFile reads and parses a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes. Environment variables in the
// format ${VAR_NAME} are expanded before unmarshalling.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides keeps the original deployment contract: MCP_HOST and
// MCP_PORT outrank the file.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("MCP_HOST"); host != "" {
		c.MCP.Host = host
	}
	if port := os.Getenv("MCP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 && n <= 65535 {
			c.MCP.Port = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.MCP.Enabled {
		if c.MCP.Port <= 0 || c.MCP.Port > 65535 {
			return fmt.Errorf("invalid mcp port: %d", c.MCP.Port)
		}
		if c.MCP.Port == c.Server.Port {
			return fmt.Errorf("mcp port %d collides with server port", c.MCP.Port)
		}
	}

	if c.Provider.Type == "" {
		return fmt.Errorf("provider.type is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}

	if c.Invoker.Timeout < 0 {
		return fmt.Errorf("invoker.timeout cannot be negative")
	}
	if c.Invoker.RetryCount < 0 {
		return fmt.Errorf("invoker.retry_count cannot be negative")
	}
	if c.Invoker.RetryBackoff < 0 {
		return fmt.Errorf("invoker.retry_backoff cannot be negative")
	}

	if _, err := generator.ParseMode(string(c.Generation.Mode)); err != nil {
		return fmt.Errorf("generation.mode: %w", err)
	}
	if c.Generation.TopK < 0 {
		return fmt.Errorf("generation.top_k cannot be negative")
	}

	switch c.Selector.Scorer {
	case "", "lexical", "embedding":
	default:
		return fmt.Errorf("unknown selector.scorer %q", c.Selector.Scorer)
	}

	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("session.idle_ttl cannot be negative")
	}
	if c.Session.DefaultSession != "" && !session.ValidSessionID(c.Session.DefaultSession) {
		return fmt.Errorf("invalid session.default_session %q", c.Session.DefaultSession)
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" && len(c.Store.Redis.ClusterAddrs) == 0 && len(c.Store.Redis.SentinelAddrs) == 0 {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.database is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.enabled requires api_keys or jwt_secret")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	if c.CORS.Enabled && !c.CORS.AllowAllOrigins && len(c.CORS.AllowOrigins) == 0 {
		return fmt.Errorf("cors.enabled requires allow_origins or allow_all_origins")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archival is enabled")
		}
		if c.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be positive")
		}
	}

	if c.Vault.Enabled {
		switch c.Vault.AuthMethod {
		case "", "token", "approle":
		default:
			return fmt.Errorf("unknown vault.auth_method %q", c.Vault.AuthMethod)
		}
		if c.Vault.AuthMethod == "approle" && c.Vault.RoleID == "" {
			return fmt.Errorf("vault.role_id is required for approle auth")
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
	}

	return nil
}
