// Package connection manages per-fingerprint pooled database connections.
// One Registry is constructed per process and shared by pkg/schema and
// pkg/executor; both acquire handles keyed by model.ConnectionConfig's
// fingerprint so a PostgreSQL pool and an Oracle pool are never confused
// even if two connection configs happen to share a host.
package connection

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/sijms/go-ora/v2"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// Registry lazily creates and caches one pool per fingerprint per dialect.
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	pg     map[string]*pgxpool.Pool
	oracle map[string]*sql.DB
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		pg:     make(map[string]*pgxpool.Pool),
		oracle: make(map[string]*sql.DB),
	}
}

// Postgres returns the pgxpool.Pool for cfg's fingerprint, creating it on
// first use. cfg.Dialect must be model.DialectPostgres.
func (r *Registry) Postgres(ctx context.Context, cfg model.ConnectionConfig) (*pgxpool.Pool, error) {
	if cfg.Dialect != model.DialectPostgres {
		return nil, fmt.Errorf("connection: %s is not postgres", cfg.Dialect)
	}
	fp := cfg.Fingerprint()

	r.mu.Lock()
	if pool, ok := r.pg[fp]; ok {
		r.mu.Unlock()
		return pool, nil
	}
	r.mu.Unlock()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?search_path=%s",
		cfg.User, cfg.Credentials, cfg.Host, cfg.Port, cfg.Database, cfg.Schema)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connection: dial postgres: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pg[fp]; ok {
		pool.Close()
		return existing, nil
	}
	r.pg[fp] = pool
	return pool, nil
}

// Oracle returns the *sql.DB for cfg's fingerprint, creating it on first
// use. cfg.Dialect must be model.DialectOracle.
func (r *Registry) Oracle(cfg model.ConnectionConfig) (*sql.DB, error) {
	if cfg.Dialect != model.DialectOracle {
		return nil, fmt.Errorf("connection: %s is not oracle", cfg.Dialect)
	}
	fp := cfg.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.oracle[fp]; ok {
		return db, nil
	}

	dsn := fmt.Sprintf("oracle://%s:%s@%s:%d/%s", cfg.User, cfg.Credentials, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, fmt.Errorf("connection: dial oracle: %w", err)
	}
	r.oracle[fp] = db
	return db, nil
}

// Close releases every pool the registry has created.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pg {
		p.Close()
	}
	for _, d := range r.oracle {
		d.Close()
	}
	r.pg = make(map[string]*pgxpool.Pool)
	r.oracle = make(map[string]*sql.DB)
}
