// Package pgvectorindex implements vectorindex.Index over PostgreSQL with
// the pgvector extension, using pgvector-go for the vector column type and
// pgxpool for pooled connections. Namespaces map to a fingerprint column,
// so one table serves every connection's retrieval context, partitioned by
// WHERE namespace = $1.
package pgvectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

// Store is a Postgres/pgvector-backed vectorindex.Index.
type Store struct {
	pool     *pgxpool.Pool
	embedder vectorindex.Embedder
	table    string
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the backing table name (default "retrieval_items").
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// New constructs a Store. Callers are expected to have applied the
// migration that creates the backing table (see migrations/ in this
// module) before calling any Store method.
func New(pool *pgxpool.Pool, embedder vectorindex.Embedder, opts ...Option) *Store {
	s := &Store{pool: pool, embedder: embedder, table: "retrieval_items"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Upsert(ctx context.Context, namespace string, items []vectorindex.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		vec := it.Embedding
		if vec == nil && s.embedder != nil {
			v, err := s.embedder.Embed(ctx, it.Text)
			if err != nil {
				return fmt.Errorf("pgvectorindex: embed item %q: %w", it.ID, err)
			}
			vec = v
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (namespace, id, kind, text, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (namespace, id) DO UPDATE
			SET kind = EXCLUDED.kind, text = EXCLUDED.text, embedding = EXCLUDED.embedding`, s.table)
		batch.Queue(query, namespace, it.ID, string(it.Kind), it.Text, pgvector.NewVector(vec))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvectorindex: upsert: %w", err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, namespace, queryText string, k int, kinds ...vectorindex.ItemKind) ([]vectorindex.ScoredItem, error) {
	var queryVec []float32
	if s.embedder != nil {
		v, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, fmt.Errorf("pgvectorindex: embed query: %w", err)
		}
		queryVec = v
	}

	query := fmt.Sprintf(`
		SELECT id, kind, text, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE namespace = $1 AND ($3::text[] IS NULL OR kind = ANY($3))
		ORDER BY score DESC, id ASC
		LIMIT $4`, s.table)

	var kindFilter []string
	if len(kinds) > 0 {
		for _, k := range kinds {
			kindFilter = append(kindFilter, string(k))
		}
	}

	rows, err := s.pool.Query(ctx, query, namespace, pgvector.NewVector(queryVec), kindFilter, k)
	if err != nil {
		return nil, fmt.Errorf("pgvectorindex: query: %w", err)
	}
	defer rows.Close()

	var out []vectorindex.ScoredItem
	for rows.Next() {
		var id, kind, text string
		var score float64
		if err := rows.Scan(&id, &kind, &text, &score); err != nil {
			return nil, fmt.Errorf("pgvectorindex: scan: %w", err)
		}
		out = append(out, vectorindex.ScoredItem{
			Item:  vectorindex.Item{ID: id, Kind: vectorindex.ItemKind(kind), Text: text},
			Score: score,
		})
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, namespace string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, s.table)
	_, err := s.pool.Exec(ctx, query, namespace)
	if err != nil {
		return fmt.Errorf("pgvectorindex: delete namespace %q: %w", namespace, err)
	}
	return nil
}
