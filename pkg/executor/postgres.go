package executor

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// PostgresExecutor runs SQL over a pgxpool.Pool. One request occupies at
// most one connection, acquired implicitly by pool.Query and released when
// rows are closed.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor wraps an existing pool.
func NewPostgresExecutor(pool *pgxpool.Pool) *PostgresExecutor {
	return &PostgresExecutor{pool: pool}
}

func (e *PostgresExecutor) Execute(ctx context.Context, sql string, opts Options) (model.QueryResult, *model.QueryError) {
	opts = opts.withDefaults()
	ctx, cancel := applyTimeout(ctx, opts)
	defer cancel()

	start := time.Now()
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return model.QueryResult{}, mapPostgresExecErr(ctx, err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	cols := make([]model.ColumnDescriptor, len(descs))
	for i, d := range descs {
		cols[i] = model.ColumnDescriptor{Name: string(d.Name)}
	}

	var result model.QueryResult
	result.Columns = cols
	result.Rows = make([]model.Row, 0, opts.RowLimit)

	typeSeen := make([]model.SemanticType, len(descs))
	count := 0
	truncated := false
	for rows.Next() {
		if count >= opts.RowLimit {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return model.QueryResult{}, mapPostgresExecErr(ctx, err)
		}
		row := make(model.Row, len(values))
		for i, v := range values {
			if i < len(descs) {
				if typeSeen[i] == "" && v != nil {
					typeSeen[i] = inferSemanticType(v)
				}
				row[string(descs[i].Name)] = v
			}
		}
		result.Rows = append(result.Rows, row)
		count++
	}
	if err := rows.Err(); err != nil {
		return model.QueryResult{}, mapPostgresExecErr(ctx, err)
	}

	for i := range cols {
		if typeSeen[i] == "" {
			typeSeen[i] = model.TypeText
		}
		cols[i].DataType = typeSeen[i]
	}
	result.Columns = cols
	result.Truncated = truncated
	result.RowCount = count
	result.Elapsed = time.Since(start)
	return result, nil
}

func inferSemanticType(v any) model.SemanticType {
	switch v.(type) {
	case int16, int32, int64, int:
		return model.TypeInteger
	case float32, float64:
		return model.TypeDecimal
	case bool:
		return model.TypeBoolean
	case time.Time:
		return model.TypeTimestamp
	case []byte:
		return model.TypeBinary
	default:
		return model.TypeText
	}
}

func mapPostgresExecErr(ctx context.Context, err error) *model.QueryError {
	if ctx.Err() == context.DeadlineExceeded {
		return &model.QueryError{Kind: model.ErrTimeout, Message: "statement timeout exceeded"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient_privilege
			return &model.QueryError{Kind: model.ErrPermissionDenied, Message: pgErr.Message}
		case pgErr.Code == "42703": // undefined_column
			return &model.QueryError{Kind: model.ErrUnknownIdentifier, Message: pgErr.Message}
		case pgErr.Code == "42P01": // undefined_table
			return &model.QueryError{Kind: model.ErrUnknownIdentifier, Message: pgErr.Message}
		case pgErr.Code[:2] == "22" || pgErr.Code[:2] == "42": // data exception / syntax/access
			if pgErr.Code[:2] == "22" {
				return &model.QueryError{Kind: model.ErrTypeMismatch, Message: pgErr.Message}
			}
			return &model.QueryError{Kind: model.ErrSyntax, Message: pgErr.Message}
		case pgErr.Code[:2] == "08": // connection exception
			return &model.QueryError{Kind: model.ErrConnectionLost, Message: pgErr.Message}
		case pgErr.Code == "57014": // query_canceled
			return &model.QueryError{Kind: model.ErrTimeout, Message: pgErr.Message}
		default:
			return &model.QueryError{Kind: model.ErrSyntax, Message: pgErr.Message}
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.QueryError{Kind: model.ErrSyntax, Message: err.Error()}
	}
	return &model.QueryError{Kind: model.ErrConnectionLost, Message: err.Error()}
}
