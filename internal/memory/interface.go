package memory

import (
	"context"
)

// Store defines the interface for durable cheatsheet storage. Entries are
// kept per session in stable insertion order; sessions are fully isolated
// from one another. Implementations must persist a write before returning.
type Store interface {
	// Append adds entries to the end of the session's collection. The
	// session is created implicitly on first write.
	Append(ctx context.Context, sessionID string, entries []Entry) error

	// Replace swaps the session's entry set wholesale. Used by the curator
	// when merge supersedes existing entries.
	Replace(ctx context.Context, sessionID string, entries []Entry) error

	// List returns the session's entries in insertion order. An unknown
	// session yields an empty slice, not an error.
	List(ctx context.Context, sessionID string) ([]Entry, error)

	// Snapshot returns the rendered cheatsheet text for the session, or
	// the EmptyCheatsheet sentinel when the session is unknown or empty.
	Snapshot(ctx context.Context, sessionID string) (string, error)

	// MarkUsed increments the usage counter of the entries with the given
	// signatures. Unknown signatures are ignored.
	MarkUsed(ctx context.Context, sessionID string, signatures []string) error

	// Delete removes the session and all of its entries.
	Delete(ctx context.Context, sessionID string) error

	// Sessions lists the IDs of all sessions that hold at least one entry.
	Sessions(ctx context.Context) ([]string, error)

	// Locator describes where the session's cheatsheet lives, e.g. a file
	// path or a key URI. Reported to clients after updates.
	Locator(sessionID string) string

	// Ping checks backend connectivity for readiness probes.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
