// Package hashembed implements vectorindex.Embedder with deterministic
// bag-of-words feature hashing. It needs no external service: each token
// is hashed into a fixed-dimension vector, so identical text always embeds
// identically and lexically-overlapping texts score high under cosine
// similarity. It is the default embedder for deployments without a real
// embedding endpoint; swap in a service-backed Embedder without touching
// the index.
package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dim is the embedding dimensionality. It matches the retrieval_items
// vector column width.
const Dim = 1536

// Embedder is a stateless, deterministic feature-hashing embedder.
type Embedder struct{}

// New constructs an Embedder.
func New() *Embedder { return &Embedder{} }

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, Dim)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % Dim)
		// The next hash bit decides the sign, spreading collisions.
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
