// Package ratelimit provides per-caller request rate limiting. Each caller
// gets a token bucket; buckets idle past the cleanup TTL are dropped so the
// limiter does not grow with every client ever seen.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/auth"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
)

// Config contains limiter settings.
type Config struct {
	// RequestsPerMinute is the sustained rate allowed per caller.
	RequestsPerMinute int
	// Burst is the bucket size. Zero derives a burst from the rate.
	Burst int
	// CleanupTTL is how long an idle caller's bucket survives.
	CleanupTTL time.Duration
	// SkipPaths bypass limiting, e.g. health probes.
	SkipPaths []string
}

// Limiter tracks a token bucket per caller key.
type Limiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time

	limit      rate.Limit
	burst      int
	cleanupTTL time.Duration
	skipPaths  map[string]bool
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// New creates a Limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute / 6
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 10 * time.Minute
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	l := &Limiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		limit:      rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:      cfg.Burst,
		cleanupTTL: cfg.CleanupTTL,
		skipPaths:  skipPaths,
		stopCh:     make(chan struct{}),
	}

	go l.cleanupLoop()
	return l
}

// Allow reports whether the caller identified by key may proceed.
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// Close stops the cleanup loop.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// ActiveCallers returns the number of buckets currently tracked.
func (l *Limiter) ActiveCallers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[key]; ok {
		l.lastAccess[key] = time.Now()
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	l.lastAccess[key] = time.Now()
	return limiter
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, last := range l.lastAccess {
		if now.Sub(last) > l.cleanupTTL {
			delete(l.limiters, key)
			delete(l.lastAccess, key)
		}
	}
}

// Middleware returns an HTTP middleware that enforces the rate limit.
// Authenticated requests are bucketed by principal, anonymous ones by
// client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key, scope := callerKey(r)
		if !l.Allow(key) {
			metrics.RateLimitedTotal.WithLabelValues(scope).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callerKey derives the bucket key for a request.
func callerKey(r *http.Request) (key, scope string) {
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		return "principal:" + principal.ID, "principal"
	}
	return "ip:" + remoteAddrHost(r.RemoteAddr), "ip"
}

func remoteAddrHost(addr string) string {
	if addr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	return addr
}
