package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyLength is the number of random bytes in a generated API key.
	KeyLength = 32
	// DefaultKeyPrefix is the prefix for generated keys.
	DefaultKeyPrefix = "dcs_"
)

// GenerateAPIKey creates a random API key with the format dcs_<random>.
// It returns the full key, shown to the operator once, and the hash to
// keep in configuration.
func GenerateAPIKey() (fullKey, hash string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("generate random bytes: %w", err)
	}

	fullKey = DefaultKeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return fullKey, HashKey(fullKey), nil
}

// HashKey creates a SHA-256 hash of the API key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// VerifyKey checks a key against a hash with constant-time comparison.
func VerifyKey(key, hash string) bool {
	keyHash := HashKey(key)
	return subtle.ConstantTimeCompare([]byte(keyHash), []byte(hash)) == 1
}

// MaskKey returns a masked form of the key safe for logs.
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// ParseAuthHeader extracts the credential from an Authorization header.
// Both "Bearer <key>" and a bare key are accepted.
func ParseAuthHeader(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header is empty")
	}

	if strings.HasPrefix(header, "Bearer ") {
		key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if key == "" {
			return "", fmt.Errorf("bearer token is empty")
		}
		return key, nil
	}

	return strings.TrimSpace(header), nil
}
