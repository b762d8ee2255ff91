package selector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DeterministicEmbedder creates embeddings from a text hash. The same text
// always maps to the same unit vector, which lets the embedding scorer run
// without a model endpoint; similar texts do not get similar vectors.
type DeterministicEmbedder struct {
	Dimensions int
}

func NewDeterministicEmbedder(dims int) *DeterministicEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &DeterministicEmbedder{Dimensions: dims}
}

func (e *DeterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(text))

	vec := make([]float32, e.Dimensions)
	for i := 0; i < e.Dimensions; i++ {
		start := (i * 4) % (len(hash) - 4)
		val := binary.BigEndian.Uint32(hash[start : start+4])
		vec[i] = float32(val) / float32(math.MaxUint32)
	}

	// Unit length, so cosine similarity is a plain dot product.
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}
