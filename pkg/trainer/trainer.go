// Package trainer keeps the vector index in sync with the live schema for
// a given connection: DDL fragments, table docs, categorical value lists,
// discovered-process docs, and dialect examples, ingested idempotently per
// connection fingerprint with single-flight dedupe of concurrent training
// runs.
package trainer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/process"
	"github.com/nlq-sql/queryengine/pkg/schema"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

// Kind names which ingest path EnsureTrained took, for metrics/logging.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
	KindSkipped     Kind = "skipped"
)

// Options bounds training.
type Options struct {
	MaxLowCardinalityColumns int
	MaxDistinctValues        int
	DistinctQueryTimeout     time.Duration
	FullIngestThreshold      float64 // ChangedTableRatio above which a full re-ingest is forced
}

func (o Options) withDefaults() Options {
	if o.MaxLowCardinalityColumns <= 0 {
		o.MaxLowCardinalityColumns = 50
	}
	if o.MaxDistinctValues <= 0 {
		o.MaxDistinctValues = 30
	}
	if o.DistinctQueryTimeout <= 0 {
		o.DistinctQueryTimeout = 10 * time.Second
	}
	if o.FullIngestThreshold <= 0 {
		o.FullIngestThreshold = 0.2
	}
	return o
}

// CategoricalFetcher fetches a column's distinct observed values, used to
// ground WHERE clauses in real values. Implementations are dialect
// specific; FetchDistinct should respect ctx's deadline.
type CategoricalFetcher interface {
	FetchDistinct(ctx context.Context, cfg model.ConnectionConfig, table, column string, cap int) ([]string, error)
}

type trainedState struct {
	hash       string
	tableNames []string
}

// Trainer keeps the vector index synchronized with live schemas.
type Trainer struct {
	Schema     schema.Resolver
	Index      vectorindex.Index
	Fetcher    CategoricalFetcher
	Discoverer *process.Discoverer
	Opts       Options

	mu      sync.Mutex
	trained map[string]trainedState
	sf      singleflight.Group
}

// New constructs a Trainer.
func New(sm schema.Resolver, index vectorindex.Index, fetcher CategoricalFetcher, discoverer *process.Discoverer, opts Options) *Trainer {
	return &Trainer{
		Schema:     sm,
		Index:      index,
		Fetcher:    fetcher,
		Discoverer: discoverer,
		Opts:       opts.withDefaults(),
		trained:    make(map[string]trainedState),
	}
}

// Result is EnsureTrained's success value.
type Result struct {
	Kind        Kind
	Snapshot    model.SchemaSnapshot
	Categorical model.CategoricalValues
}

// EnsureTrained ingests cfg's schema into the VectorIndex if not already
// trained, or if a schema diff is detected. A second concurrent call for
// the same fingerprint blocks until the first completes and then returns
// its result without re-running (golang.org/x/sync/singleflight). A
// training failure does not mark the fingerprint trained; the next call
// retries from scratch.
func (t *Trainer) EnsureTrained(ctx context.Context, cfg model.ConnectionConfig, profile dialect.Profile) (Result, error) {
	fp := cfg.Fingerprint()

	v, err, _ := t.sf.Do(fp, func() (any, error) {
		return t.run(ctx, fp, cfg, profile)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (t *Trainer) run(ctx context.Context, fp string, cfg model.ConnectionConfig, profile dialect.Profile) (Result, error) {
	mgr, err := t.Schema.Manager(ctx, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("trainer: resolve schema manager: %w", err)
	}
	snapshot, err := mgr.Snapshot(ctx, cfg.Schema)
	if err != nil {
		return Result{}, fmt.Errorf("trainer: snapshot: %w", err)
	}

	t.mu.Lock()
	prev, wasTrained := t.trained[fp]
	t.mu.Unlock()

	newHash := snapshot.Hash()
	if wasTrained && prev.hash == newHash {
		categorical := t.fetchCategorical(ctx, cfg, snapshot)
		return Result{Kind: KindSkipped, Snapshot: snapshot, Categorical: categorical}, nil
	}

	kind := KindFull
	tablesToIngest := snapshot.Tables
	if wasTrained {
		diff := diffByNames(prev.tableNames, snapshot)
		if !diff.Empty() && diff.ChangedTableRatio(len(snapshot.Tables)) <= t.Opts.FullIngestThreshold {
			kind = KindIncremental
			tablesToIngest = changedTablesOnly(snapshot, diff)
		}
	}

	categorical := t.fetchCategorical(ctx, cfg, snapshot)
	var discovered []process.DiscoveredProcess
	if t.Discoverer != nil {
		discovered = t.Discoverer.Discover(fp, snapshot, categorical)
	}

	if kind == KindFull {
		if err := t.Index.Delete(ctx, fp); err != nil {
			return Result{}, fmt.Errorf("trainer: clear namespace: %w", err)
		}
	}

	items := t.buildItems(snapshot, tablesToIngest, categorical, discovered, profile)
	if err := t.Index.Upsert(ctx, fp, items); err != nil {
		return Result{}, fmt.Errorf("trainer: upsert: %w", err)
	}

	tableNames := make([]string, len(snapshot.Tables))
	for i, tb := range snapshot.Tables {
		tableNames[i] = tb.Name
	}
	t.mu.Lock()
	t.trained[fp] = trainedState{hash: newHash, tableNames: tableNames}
	t.mu.Unlock()

	return Result{Kind: kind, Snapshot: snapshot, Categorical: categorical}, nil
}

// Invalidate forgets fp's trained state, forcing a full re-ingest on the
// next EnsureTrained call. Callers invoke this when they detect a schema
// diff out of band (e.g. an explicit refresh request).
func (t *Trainer) Invalidate(fp string) {
	t.mu.Lock()
	delete(t.trained, fp)
	t.mu.Unlock()
}

func diffByNames(prevNames []string, newSnapshot model.SchemaSnapshot) model.SchemaDiff {
	prev := model.SchemaSnapshot{Tables: make([]model.Table, len(prevNames))}
	for i, n := range prevNames {
		prev.Tables[i] = model.Table{Name: n}
	}
	// Table-name-only diff is intentionally conservative here: the
	// trainer only has the new snapshot in hand plus the name list from
	// the last training run, so any table carried over by name is
	// treated as "possibly modified" and gets re-ingested under the
	// incremental path; whole-hash equality was already checked by the
	// caller before reaching this function.
	added := []string{}
	removed := []string{}
	modified := []string{}
	prevSet := map[string]bool{}
	for _, n := range prevNames {
		prevSet[n] = true
	}
	newSet := map[string]bool{}
	for _, t := range newSnapshot.Tables {
		newSet[t.Name] = true
		if prevSet[t.Name] {
			modified = append(modified, t.Name)
		} else {
			added = append(added, t.Name)
		}
	}
	for _, n := range prevNames {
		if !newSet[n] {
			removed = append(removed, n)
		}
	}
	return model.SchemaDiff{AddedTables: added, RemovedTables: removed, ModifiedTables: modified}
}

func changedTablesOnly(snapshot model.SchemaSnapshot, diff model.SchemaDiff) []model.Table {
	changed := map[string]bool{}
	for _, n := range diff.AddedTables {
		changed[n] = true
	}
	for _, n := range diff.ModifiedTables {
		changed[n] = true
	}
	var out []model.Table
	for _, t := range snapshot.Tables {
		if changed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
