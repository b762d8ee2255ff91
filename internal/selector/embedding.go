package selector

import (
	"context"
	"fmt"
	"math"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Embedder defines the interface for generating vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingScorer rates entries by cosine similarity between the query
// embedding and each entry embedding. Entry embeddings are recomputed per
// call; the store keeps text only.
type EmbeddingScorer struct {
	embedder Embedder
}

func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

func (s *EmbeddingScorer) Name() string { return "embedding" }

func (s *EmbeddingScorer) Score(ctx context.Context, query string, entries []memory.Entry) ([]float64, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scores := make([]float64, len(entries))
	for i, entry := range entries {
		vec, err := s.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return nil, fmt.Errorf("embed entry: %w", err)
		}
		scores[i] = float64(cosineSimilarity(queryVec, vec))
	}
	return scores, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched dimensions score zero.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float32
	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
