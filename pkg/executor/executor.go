// Package executor runs validated read-only SQL with a row cap, a
// statement timeout, and structured error mapping. Two pooled backends
// are provided (postgres, oracle) behind a shared Executor interface;
// both enforce the cap by stopping row materialization rather than
// fetching an unbounded result set first.
package executor

import (
	"context"
	"time"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// Options bounds one execution.
type Options struct {
	RowLimit         int
	StatementTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RowLimit <= 0 {
		o.RowLimit = 10000
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = 30 * time.Second
	}
	return o
}

// Executor runs already-validated SQL against a dialect-specific pool.
type Executor interface {
	Execute(ctx context.Context, sql string, opts Options) (model.QueryResult, *model.QueryError)
}

// applyTimeout wraps ctx with opts.StatementTimeout, returning the derived
// context and its cancel func; callers must defer the cancel.
func applyTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opts.StatementTimeout)
}
