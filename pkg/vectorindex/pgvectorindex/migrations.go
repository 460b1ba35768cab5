package pgvectorindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the pending migrations that create the retrieval_items
// table and its pgvector index. db must be a database/sql handle onto the
// same Postgres the Store's pool points at; goose's Provider API is used
// to avoid global state, so concurrent Migrate calls are safe.
func Migrate(ctx context.Context, log *slog.Logger, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("pgvectorindex: migrations sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("pgvectorindex: goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("pgvectorindex: run migrations: %w", err)
	}
	for _, r := range results {
		log.Info("migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	if len(results) == 0 {
		log.Info("no pending migrations")
	}
	return nil
}
