// Package filestore persists cheatsheets on local disk: a JSON-lines entry
// log plus a rendered plain-text snapshot, one pair of files per session.
// It is the default backend.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

const (
	entryExt    = ".jsonl"
	snapshotExt = ".txt"
)

// Store is a file-backed implementation of memory.Store. Writes are atomic
// (temp file + rename) and synced before returning.
type Store struct {
	mu      sync.RWMutex
	dataDir string
}

// New creates the data directory if needed and returns the store.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(sessionID)
	if err != nil {
		return err
	}
	return s.writeAll(sessionID, append(existing, entries...))
}

func (s *Store) Replace(ctx context.Context, sessionID string, entries []memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAll(sessionID, entries)
}

func (s *Store) List(ctx context.Context, sessionID string) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(sessionID)
}

func (s *Store) Snapshot(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load(sessionID)
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

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(sessionID)
	if err != nil {
		return err
	}
	changed := false
	for i := range entries {
		if _, ok := wanted[entries[i].Signature]; ok {
			entries[i].UsageCount++
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeAll(sessionID, entries)
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.fileBase(sessionID)
	if err != nil {
		return err
	}
	for _, ext := range []string{entryExt, snapshotExt} {
		if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", base+ext, err)
		}
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var ids []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, entryExt))
	}
	return ids, nil
}

// Locator returns the path of the session's plain-text snapshot.
func (s *Store) Locator(sessionID string) string {
	base, err := s.fileBase(sessionID)
	if err != nil {
		return ""
	}
	return base + snapshotExt
}

func (s *Store) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.dataDir)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// fileBase maps a session ID onto a path inside the data dir. IDs are
// validated upstream; separators are rejected here as a second line of
// defense against path traversal.
func (s *Store) fileBase(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	if strings.ContainsAny(sessionID, "/\\") || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id: %s", sessionID)
	}
	return filepath.Join(s.dataDir, sessionID), nil
}

func (s *Store) load(sessionID string) ([]memory.Entry, error) {
	base, err := s.fileBase(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(base + entryExt)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entry log: %w", err)
	}

	var entries []memory.Entry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e memory.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("parse entry log for %s: %w", sessionID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// writeAll rewrites both the entry log and the snapshot atomically.
func (s *Store) writeAll(sessionID string, entries []memory.Entry) error {
	base, err := s.fileBase(sessionID)
	if err != nil {
		return err
	}

	var log strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		log.Write(line)
		log.WriteByte('\n')
	}

	if err := atomicWrite(base+entryExt, []byte(log.String())); err != nil {
		return fmt.Errorf("write entry log: %w", err)
	}
	if err := atomicWrite(base+snapshotExt, []byte(memory.Render(entries)+"\n")); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// atomicWrite writes through a temp file, syncs, and renames into place.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
