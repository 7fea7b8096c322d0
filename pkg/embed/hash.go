// Package embed provides Embedding Port adapters for core.VectorStore.
//
//   - Hash: offline hashed bag-of-words vectors, for tests and air-gapped use
//   - OpenAI: any OpenAI-compatible /embeddings endpoint (llama.cpp server, Ollama, OpenAI)
//   - Cached: an in-memory cache in front of another embedder
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/liliang-cn/mscp/pkg/core"
)

// DefaultHashDim matches the all-MiniLM-L6-v2 dimension.
const DefaultHashDim = 384

var (
	_ core.Embedder = (*Hash)(nil)
	_ core.Embedder = (*OpenAI)(nil)
	_ core.Embedder = (*Cached)(nil)
)

// Hash embeds text as a signed, hashed bag of lowercase words normalized to
// unit length. Texts sharing words land close together, which makes it a
// usable stand-in for a semantic model in tests.
type Hash struct {
	dimensions int
}

// NewHash creates a hash embedder. dimensions <= 0 selects DefaultHashDim.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = DefaultHashDim
	}
	return &Hash{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()

		idx := sum % uint64(h.dimensions)
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	return normalize(vec), nil
}

// Dim returns the embedding size.
func (h *Hash) Dim() int {
	return h.dimensions
}

// normalize scales vec to unit length in place. A zero vector is returned as is.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
