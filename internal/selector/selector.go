// Package selector implements top-k retrieval over cheatsheet entries for
// the retrieval-synthesis mode. Scoring is pluggable; ties break by recency
// and then by insertion order, so results are deterministic for a fixed
// scorer and input.
package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Scorer rates every entry against a query in one batch. Scores are
// comparable within a single call; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, entries []memory.Entry) ([]float64, error)
	Name() string
}

// Selector picks the top-k entries for a query.
type Selector struct {
	scorer Scorer
}

func New(scorer Scorer) *Selector {
	return &Selector{scorer: scorer}
}

// Select returns at most k entries ordered by score descending. Ties break
// by created_at (newer first), then by insertion order. k <= 0 or an empty
// entry set yields an empty result; the caller renders the sentinel.
func (s *Selector) Select(ctx context.Context, query string, entries []memory.Entry, k int) ([]memory.Entry, error) {
	if k <= 0 || len(entries) == 0 {
		return nil, nil
	}

	scores, err := s.scorer.Score(ctx, query, entries)
	if err != nil {
		return nil, fmt.Errorf("score entries: %w", err)
	}
	if len(scores) != len(entries) {
		return nil, fmt.Errorf("scorer %s returned %d scores for %d entries", s.scorer.Name(), len(scores), len(entries))
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps insertion order for full ties.
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if k > len(entries) {
		k = len(entries)
	}
	result := make([]memory.Entry, 0, k)
	for _, idx := range order[:k] {
		result = append(result, entries[idx])
	}
	return result, nil
}

// ScorerName reports the configured scorer, for logging.
func (s *Selector) ScorerName() string {
	return s.scorer.Name()
}
