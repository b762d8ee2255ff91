package secret

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedProvider decorates a Provider with a TTL cache so hot references,
// such as the model provider API key re-read on config reload, do not hit
// the backing store every time.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
}

// NewCachedProvider wraps inner with an in-memory cache. Entries expire
// after ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(ttl, ttl*2),
	}
}

// Get serves from the cache when possible and fills it on miss.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if cached, found := p.cache.Get(path); found {
		if val, ok := cached.(string); ok {
			return val, nil
		}
	}

	val, err := p.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	p.cache.Set(path, val, gocache.DefaultExpiration)
	return val, nil
}

// Close closes the inner provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
