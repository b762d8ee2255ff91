// Package memory defines the durable, session-scoped cheatsheet store:
// the entry model, the storage interface, and the snapshot rendering shared
// by every backend.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EmptyCheatsheet is the exact snapshot text for a session with no entries.
// Clients and prompt templates rely on this literal value.
const EmptyCheatsheet = "(empty)"

// BlockSeparator divides entry blocks inside a rendered cheatsheet.
const BlockSeparator = "---"

// Entry is one immutable cheatsheet item. Content is never edited in place;
// curation appends new entries or replaces the set wholesale.
type Entry struct {
	Signature     string    `json:"signature"`
	Content       string    `json:"content"`
	SourceQueryID string    `json:"source_query_id,omitempty"`
	UsageCount    int       `json:"usage_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewEntry builds an entry for the given content, stamping the signature.
func NewEntry(content, sourceQueryID string, now time.Time) Entry {
	return Entry{
		Signature:     Signature(content),
		Content:       strings.TrimSpace(content),
		SourceQueryID: sourceQueryID,
		CreatedAt:     now.UTC(),
	}
}

// Signature computes the opaque retrieval key for entry content: a SHA-256
// over the whitespace-collapsed text, so formatting changes do not create
// duplicate entries.
func Signature(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(sum[:])
}

// Render concatenates entries into the cheatsheet text handed to prompts.
// An empty set renders as the EmptyCheatsheet sentinel.
func Render(entries []Entry) string {
	if len(entries) == 0 {
		return EmptyCheatsheet
	}
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		blocks = append(blocks, strings.TrimSpace(e.Content))
	}
	if len(blocks) == 0 {
		return EmptyCheatsheet
	}
	return strings.Join(blocks, "\n\n"+BlockSeparator+"\n\n")
}

// SplitBlocks is the inverse of Render: it cuts cheatsheet text into entry
// blocks on separator lines, dropping blanks. Text without separators is a
// single block. The sentinel yields no blocks.
func SplitBlocks(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == EmptyCheatsheet {
		return nil
	}
	var blocks []string
	var current []string
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) == BlockSeparator {
			if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
				blocks = append(blocks, block)
			}
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
		blocks = append(blocks, block)
	}
	return blocks
}
