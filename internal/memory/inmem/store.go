// Package inmem provides a thread-safe in-memory cheatsheet store. It backs
// tests and zero-setup local runs; nothing survives a restart.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Store is a thread-safe in-memory implementation of memory.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]memory.Entry
}

func New() *Store {
	return &Store{
		sessions: make(map[string][]memory.Entry),
	}
}

func (s *Store) Append(ctx context.Context, sessionID string, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], entries...)
	return nil
}

func (s *Store) Replace(ctx context.Context, sessionID string, entries []memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to keep callers from mutating stored state afterwards.
	replacement := make([]memory.Entry, len(entries))
	copy(replacement, entries)
	s.sessions[sessionID] = replacement
	return nil
}

func (s *Store) List(ctx context.Context, sessionID string) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sessions[sessionID]
	result := make([]memory.Entry, len(stored))
	copy(result, stored)
	return result, nil
}

func (s *Store) Snapshot(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memory.Render(s.sessions[sessionID]), nil
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

	stored := s.sessions[sessionID]
	for i := range stored {
		if _, ok := wanted[stored[i].Signature]; ok {
			stored[i].UsageCount++
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, entries := range s.sessions {
		if len(entries) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Locator(sessionID string) string {
	return "memory://" + sessionID
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
