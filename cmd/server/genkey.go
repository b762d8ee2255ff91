package main

import (
	"fmt"
	"io"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/auth"
)

// runGenerateKey prints a fresh API key with its hash. The key goes to the
// client, the hash is what operators can keep for audit trails.
func runGenerateKey(w io.Writer) error {
	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate api key: %w", err)
	}
	fmt.Fprintf(w, "api key: %s\n", key)
	fmt.Fprintf(w, "sha-256: %s\n", hash)
	return nil
}
