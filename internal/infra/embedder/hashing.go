package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultHashDimensions = 256

// HashingModel embeds text locally with signed feature hashing over word unigrams and bigrams.
// Identical token streams produce identical vectors; text without tokens maps to the zero vector.
type HashingModel struct {
	dim int
}

// NewHashingModel constructs the model.
func NewHashingModel(dim int) *HashingModel {
	if dim <= 0 {
		dim = defaultHashDimensions
	}
	return &HashingModel{dim: dim}
}

// Dimensions returns the vector length produced by the model.
func (m *HashingModel) Dimensions() int {
	return m.dim
}

// Embed converts each text into an L2-normalized hashed feature vector.
func (m *HashingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = m.embedOne(text)
	}
	return vectors, nil
}

func (m *HashingModel) embedOne(text string) []float32 {
	acc := make([]float64, m.dim)
	tokens := tokenize(text)
	for i, token := range tokens {
		m.addFeature(acc, token, 1)
		if i > 0 {
			m.addFeature(acc, tokens[i-1]+" "+token, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vector := make([]float32, m.dim)
	if norm == 0 {
		return vector
	}
	norm = math.Sqrt(norm)
	for j, v := range acc {
		vector[j] = float32(v / norm)
	}
	return vector
}

func (m *HashingModel) addFeature(acc []float64, feature string, weight float64) {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(feature))
	sum := hash.Sum64()
	idx := int(sum % uint64(m.dim))
	// the top bit picks the sign so collisions tend to cancel instead of pile up
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}
