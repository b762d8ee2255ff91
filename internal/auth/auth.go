// Package auth provides API key and JWT authentication for the HTTP
// surface. Static keys come from configuration; key material is hashed
// before it is held in memory so process dumps never expose a usable key.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PrincipalContextKey is the context key for the authenticated Principal.
const PrincipalContextKey contextKey = "principal"

// Principal identifies an authenticated caller.
type Principal struct {
	// ID is a masked key identifier or the JWT subject. Safe for logs and
	// rate-limit bucketing.
	ID string
	// Method is "api_key" or "jwt".
	Method string
}

// Config contains settings for the auth middleware.
type Config struct {
	Enabled bool
	// APIKeys are accepted as X-API-Key or bearer credentials.
	APIKeys []string
	// JWTSecret enables HS256 bearer token verification when non-empty.
	JWTSecret string
	// SkipPaths bypass authentication, e.g. /health/live and /metrics.
	SkipPaths []string
	Logger    *slog.Logger
}

// Authenticator validates request credentials against configured API keys
// and an optional JWT secret.
type Authenticator struct {
	keyHashes map[string]string
	jwtSecret []byte
	enabled   bool
	skipPaths map[string]bool
	logger    *slog.Logger
}

// New creates an Authenticator. Configured keys are hashed immediately and
// the plaintext is discarded.
func New(cfg Config) *Authenticator {
	keyHashes := make(map[string]string, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key == "" {
			continue
		}
		keyHashes[HashKey(key)] = MaskKey(key)
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}

	return &Authenticator{
		keyHashes: keyHashes,
		jwtSecret: secret,
		enabled:   cfg.Enabled,
		skipPaths: skipPaths,
		logger:    logger,
	}
}

// Middleware returns an HTTP middleware that rejects unauthenticated
// requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled || a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		credential := a.credentialFromRequest(r)
		if credential == "" {
			metrics.AuthFailuresTotal.WithLabelValues("missing_credentials").Inc()
			a.writeUnauthorized(w, "missing credentials")
			return
		}

		if masked, ok := a.keyHashes[HashKey(credential)]; ok {
			a.serveAs(next, w, r, &Principal{ID: masked, Method: "api_key"})
			return
		}

		if len(a.jwtSecret) > 0 {
			principal, err := a.verifyJWT(credential)
			if err == nil {
				a.serveAs(next, w, r, principal)
				return
			}
			metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
			a.logger.Debug("jwt verification failed", "error", err)
			a.writeUnauthorized(w, "invalid credentials")
			return
		}

		metrics.AuthFailuresTotal.WithLabelValues("invalid_key").Inc()
		a.writeUnauthorized(w, "invalid api key")
	})
}

// credentialFromRequest pulls the API key or token from X-API-Key or the
// Authorization header.
func (a *Authenticator) credentialFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	credential, err := ParseAuthHeader(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return credential
}

func (a *Authenticator) verifyJWT(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		subject = "anonymous"
	}
	return &Principal{ID: "jwt:" + subject, Method: "jwt"}, nil
}

func (a *Authenticator) serveAs(next http.Handler, w http.ResponseWriter, r *http.Request, p *Principal) {
	ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// PrincipalFromContext retrieves the authenticated Principal, or nil when
// the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

func (a *Authenticator) writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"message":"` + message + `","type":"authentication_error"}}`))
}
