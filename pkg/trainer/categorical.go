package trainer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/connection"
	"github.com/nlq-sql/queryengine/pkg/model"
)

// categoricalSkipSuffixes / categoricalSkipExact name column shapes that
// are never worth a DISTINCT query: identifiers, timestamps, and
// free-text fields whose values don't enumerate.
var categoricalSkipSuffixes = []string{"_id", "_key", "_code", "_at", "_time", "_timestamp", "_date", "_hash", "_pubkey", "_address"}
var categoricalSkipExact = []string{"id", "uuid", "name", "description", "comment", "message", "error", "reason"}

func shouldSkipColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range categoricalSkipSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	for _, exact := range categoricalSkipExact {
		if lower == exact {
			return true
		}
	}
	return false
}

func isCategoricalCandidate(col model.Column) bool {
	return col.DataType == model.TypeText && !col.IsPK && !col.IsFK && !shouldSkipColumn(col.Name)
}

// fetchCategorical walks snapshot's tables looking for low-cardinality
// candidate columns (text, not a PK/FK, not an id/timestamp-shaped name),
// capped at MaxLowCardinalityColumns total, and fetches up to
// MaxDistinctValues values for each, each query bounded by
// DistinctQueryTimeout. A column whose fetch errors or returns more than
// MaxDistinctValues values is dropped silently — not categorical enough
// to be worth grounding prompts in.
func (t *Trainer) fetchCategorical(ctx context.Context, cfg model.ConnectionConfig, snapshot model.SchemaSnapshot) model.CategoricalValues {
	out := model.CategoricalValues{Values: make(map[model.TableColumn][]string)}
	if t.Fetcher == nil {
		return out
	}

	budget := t.Opts.MaxLowCardinalityColumns
	for _, table := range snapshot.Tables {
		if budget <= 0 {
			break
		}
		for _, col := range table.Columns {
			if budget <= 0 {
				break
			}
			if !isCategoricalCandidate(col) {
				continue
			}
			budget--

			qctx, cancel := context.WithTimeout(ctx, t.Opts.DistinctQueryTimeout)
			values, err := t.Fetcher.FetchDistinct(qctx, cfg, table.Name, col.Name, t.Opts.MaxDistinctValues)
			cancel()
			if err != nil || len(values) == 0 || len(values) > t.Opts.MaxDistinctValues {
				continue
			}
			out.Values[model.TableColumn{Table: table.Name, Column: col.Name}] = values
		}
	}
	return out
}

// PoolFetcher is the default CategoricalFetcher, issuing a bounded
// DISTINCT query per column against the pooled connection for cfg's
// dialect.
type PoolFetcher struct {
	Registry *connection.Registry
}

// NewPoolFetcher constructs a PoolFetcher over reg.
func NewPoolFetcher(reg *connection.Registry) *PoolFetcher {
	return &PoolFetcher{Registry: reg}
}

func (f *PoolFetcher) FetchDistinct(ctx context.Context, cfg model.ConnectionConfig, table, column string, cap int) ([]string, error) {
	switch cfg.Dialect {
	case model.DialectPostgres:
		return f.fetchPostgres(ctx, cfg, table, column, cap)
	case model.DialectOracle:
		return f.fetchOracle(ctx, cfg, table, column, cap)
	default:
		return nil, fmt.Errorf("trainer: unsupported dialect %q", cfg.Dialect)
	}
}

func (f *PoolFetcher) fetchPostgres(ctx context.Context, cfg model.ConnectionConfig, table, column string, cap int) ([]string, error) {
	pool, err := f.Registry.Postgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL LIMIT %d`, column, table, column, cap+1)
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDistinct(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDistinct(rows pgxRows) ([]string, error) {
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != "" {
			values = append(values, v)
		}
	}
	return values, rows.Err()
}

func (f *PoolFetcher) fetchOracle(ctx context.Context, cfg model.ConnectionConfig, table, column string, cap int) ([]string, error) {
	db, err := f.Registry.Oracle(cfg)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL FETCH FIRST %d ROWS ONLY`, column, table, column, cap+1)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid && v.String != "" {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}
