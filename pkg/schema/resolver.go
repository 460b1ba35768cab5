package schema

import (
	"context"
	"fmt"

	"github.com/nlq-sql/queryengine/pkg/connection"
	"github.com/nlq-sql/queryengine/pkg/model"
)

// Resolver yields the Manager for a given connection. The pipeline serves
// many connections from one process, so managers are resolved per request
// rather than constructed once.
type Resolver interface {
	Manager(ctx context.Context, cfg model.ConnectionConfig) (Manager, error)
}

// PoolResolver resolves managers over the shared connection Registry.
type PoolResolver struct {
	Registry *connection.Registry
}

// NewPoolResolver constructs a PoolResolver over reg.
func NewPoolResolver(reg *connection.Registry) *PoolResolver {
	return &PoolResolver{Registry: reg}
}

func (r *PoolResolver) Manager(ctx context.Context, cfg model.ConnectionConfig) (Manager, error) {
	switch cfg.Dialect {
	case model.DialectPostgres:
		pool, err := r.Registry.Postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresManager(pool), nil
	case model.DialectOracle:
		db, err := r.Registry.Oracle(cfg)
		if err != nil {
			return nil, err
		}
		return NewOracleManager(db), nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", cfg.Dialect)
	}
}
