// Package secret resolves secret references found in configuration values.
// References are scheme-routed: "env://VAR" reads an environment variable,
// "vault://path#field" reads HashiCorp Vault, and a value with no scheme is
// a literal returned unchanged.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Provider retrieves secrets from a single backing source.
type Provider interface {
	// Get retrieves the secret value for path. The path carries no scheme.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Manager routes secret references to providers by scheme. The env scheme
// is always registered.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager returns a Manager with the env provider pre-registered.
func NewManager() *Manager {
	m := &Manager{providers: make(map[string]Provider)}
	m.Register("env", EnvProvider{})
	return m
}

// Register routes scheme to p, replacing any previous provider for that
// scheme.
func (m *Manager) Register(scheme string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = p
}

// Resolve returns the value behind ref. A ref without a scheme separator is
// treated as a literal so plain values in config files keep working.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, path, found := strings.Cut(ref, "://")
	if !found {
		return ref, nil
	}

	m.mu.RLock()
	p, ok := m.providers[scheme]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no secret provider registered for scheme %q", scheme)
	}
	return p.Get(ctx, path)
}

// ResolveSlice resolves every reference in refs, preserving order.
func (m *Manager) ResolveSlice(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, len(refs))
	for i, ref := range refs {
		val, err := m.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// Close closes every registered provider and aggregates their errors.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []string
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", scheme, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close secret providers: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnvProvider reads secrets from process environment variables.
type EnvProvider struct{}

// Get returns the value of the environment variable named by path.
func (EnvProvider) Get(_ context.Context, path string) (string, error) {
	val, ok := os.LookupEnv(path)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", path)
	}
	return val, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }
