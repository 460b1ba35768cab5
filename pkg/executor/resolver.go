package executor

import (
	"context"
	"fmt"

	"github.com/nlq-sql/queryengine/pkg/connection"
	"github.com/nlq-sql/queryengine/pkg/model"
)

// Resolver yields the Executor for a given connection. Executions from
// distinct requests share only the per-fingerprint pool underneath.
type Resolver interface {
	Executor(ctx context.Context, cfg model.ConnectionConfig) (Executor, error)
}

// PoolResolver resolves executors over the shared connection Registry.
type PoolResolver struct {
	Registry *connection.Registry
}

// NewPoolResolver constructs a PoolResolver over reg.
func NewPoolResolver(reg *connection.Registry) *PoolResolver {
	return &PoolResolver{Registry: reg}
}

func (r *PoolResolver) Executor(ctx context.Context, cfg model.ConnectionConfig) (Executor, error) {
	switch cfg.Dialect {
	case model.DialectPostgres:
		pool, err := r.Registry.Postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresExecutor(pool), nil
	case model.DialectOracle:
		db, err := r.Registry.Oracle(cfg)
		if err != nil {
			return nil, err
		}
		return NewOracleExecutor(db), nil
	default:
		return nil, fmt.Errorf("executor: unsupported dialect %q", cfg.Dialect)
	}
}
