// Package memoryindex implements vectorindex.Index in-process over plain
// slices, with cosine similarity ranking. Used by tests and as the default
// for environments without a Postgres/pgvector deployment.
package memoryindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

// Store is an in-memory, namespace-partitioned vectorindex.Index.
type Store struct {
	embedder vectorindex.Embedder

	mu         sync.RWMutex
	namespaces map[string][]vectorindex.Item
}

// New constructs a Store. embedder is used to vectorize Upsert items that
// arrive without a precomputed Embedding, and every Query's text.
func New(embedder vectorindex.Embedder) *Store {
	return &Store{
		embedder:   embedder,
		namespaces: make(map[string][]vectorindex.Item),
	}
}

func (s *Store) Upsert(ctx context.Context, namespace string, items []vectorindex.Item) error {
	resolved := make([]vectorindex.Item, len(items))
	for i, it := range items {
		if it.Embedding == nil && s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, it.Text)
			if err != nil {
				return err
			}
			it.Embedding = vec
		}
		resolved[i] = it
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.namespaces[namespace]
	byID := make(map[string]int, len(existing))
	for i, it := range existing {
		byID[it.ID] = i
	}
	for _, it := range resolved {
		if idx, ok := byID[it.ID]; ok {
			existing[idx] = it
			continue
		}
		byID[it.ID] = len(existing)
		existing = append(existing, it)
	}
	s.namespaces[namespace] = existing
	return nil
}

func (s *Store) Query(ctx context.Context, namespace, queryText string, k int, kinds ...vectorindex.ItemKind) ([]vectorindex.ScoredItem, error) {
	var queryVec []float32
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, err
		}
		queryVec = vec
	}

	allowed := map[vectorindex.ItemKind]bool{}
	for _, k := range kinds {
		allowed[k] = true
	}

	s.mu.RLock()
	items := append([]vectorindex.Item(nil), s.namespaces[namespace]...)
	s.mu.RUnlock()

	scored := make([]vectorindex.ScoredItem, 0, len(items))
	for _, it := range items {
		if len(allowed) > 0 && !allowed[it.Kind] {
			continue
		}
		scored = append(scored, vectorindex.ScoredItem{Item: it, Score: cosine(queryVec, it.Embedding)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) Delete(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
