// Package vectorindex defines the retrieval store interface: it stores
// DDL fragments, example Q→SQL pairs, documentation, and categorical
// value lists, and returns top-K items by similarity. Two implementations
// are provided: memoryindex.Store (in-process, cosine similarity) and
// pgvectorindex.Store (backed by pgvector + pgx).
package vectorindex

import "context"

// ItemKind tags what an Item represents.
type ItemKind string

const (
	KindDDL       ItemKind = "ddl"
	KindDoc       ItemKind = "doc"
	KindExampleQA ItemKind = "example_q_sql"
)

// Item is one unit of retrieval context.
type Item struct {
	ID        string
	Kind      ItemKind
	Text      string
	Embedding []float32
}

// ScoredItem pairs an Item with its similarity score against a query.
// Ranking is higher-score-first; ties break on Item.ID for determinism.
type ScoredItem struct {
	Item
	Score float64
}

// Index is the VectorIndex consumed interface.
type Index interface {
	// Upsert inserts or replaces items in namespace, embedding Text if
	// Embedding is nil.
	Upsert(ctx context.Context, namespace string, items []Item) error

	// Query returns the top-k items in namespace most similar to queryText,
	// restricted to the given kinds if non-empty.
	Query(ctx context.Context, namespace, queryText string, k int, kinds ...ItemKind) ([]ScoredItem, error)

	// Delete removes every item in namespace.
	Delete(ctx context.Context, namespace string) error
}

// Embedder turns text into a vector. Training and query both go through the
// same Embedder so similarity is meaningful.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
