// Package redis provides a Redis-backed cheatsheet store. Each session is a
// list of JSON-encoded entries under a namespaced key, with a set tracking
// known sessions. Single-node, cluster, and sentinel deployments are
// supported.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Config holds configuration for the Redis store.
type Config struct {
	// Single node configuration
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"` // Redis cluster addresses

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`  // Sentinel addresses
	SentinelMaster string   `yaml:"sentinel_master"` // Sentinel master name

	// Common configuration
	Namespace    string        `yaml:"namespace"`      // Key namespace prefix
	DialTimeout  time.Duration `yaml:"dial_timeout"`   // Connection timeout
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Read timeout
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Write timeout
	PoolSize     int           `yaml:"pool_size"`      // Connection pool size
	MinIdleConns int           `yaml:"min_idle_conns"` // Minimum idle connections
	MaxRetries   int           `yaml:"max_retries"`    // Maximum retries
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		Namespace:    "cheatsheet",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// Store implements memory.Store on Redis.
type Store struct {
	client    goredis.UniversalClient
	namespace string
}

// New creates a Redis store, choosing the client flavor from the config.
func New(cfg Config) (*Store, error) {
	var client goredis.UniversalClient

	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "cheatsheet"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client, namespace: namespace}, nil
}

// NewFromClient wraps an existing client. Used by tests.
func NewFromClient(client goredis.UniversalClient, namespace string) *Store {
	if namespace == "" {
		namespace = "cheatsheet"
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) entryKey(sessionID string) string {
	return s.namespace + ":entries:" + sessionID
}

func (s *Store) sessionsKey() string {
	return s.namespace + ":sessions"
}

func (s *Store) Append(ctx context.Context, sessionID string, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.entryKey(sessionID), values...)
	pipe.SAdd(ctx, s.sessionsKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, sessionID string, entries []memory.Entry) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.entryKey(sessionID))
	if len(entries) > 0 {
		values := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
			values = append(values, data)
		}
		pipe.RPush(ctx, s.entryKey(sessionID), values...)
		pipe.SAdd(ctx, s.sessionsKey(), sessionID)
	} else {
		pipe.SRem(ctx, s.sessionsKey(), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace entries: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, sessionID string) ([]memory.Entry, error) {
	raw, err := s.client.LRange(ctx, s.entryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	entries := make([]memory.Entry, 0, len(raw))
	for _, item := range raw {
		var e memory.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) Snapshot(ctx context.Context, sessionID string) (string, error) {
	entries, err := s.List(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return memory.Render(entries), nil
}

func (s *Store) MarkUsed(ctx context.Context, sessionID string, signatures []string) error {
	if len(signatures) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(signatures))
	for _, sig := range signatures {
		wanted[sig] = struct{}{}
	}

	entries, err := s.List(ctx, sessionID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	touched := false
	for i := range entries {
		if _, ok := wanted[entries[i].Signature]; !ok {
			continue
		}
		entries[i].UsageCount++
		data, err := json.Marshal(entries[i])
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		pipe.LSet(ctx, s.entryKey(sessionID), int64(i), data)
		touched = true
	}
	if !touched {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark used: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.entryKey(sessionID))
	pipe.SRem(ctx, s.sessionsKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (s *Store) Locator(sessionID string) string {
	return fmt.Sprintf("redis://%s/%s", s.namespace, sessionID)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
