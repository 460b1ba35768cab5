package trainer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/process"
	"github.com/nlq-sql/queryengine/pkg/schema"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

type mutableSchemaResolver struct {
	mu       sync.Mutex
	snapshot model.SchemaSnapshot
	err      error
	calls    atomic.Int32
}

func (r *mutableSchemaResolver) Manager(context.Context, model.ConnectionConfig) (schema.Manager, error) {
	return r, nil
}

func (r *mutableSchemaResolver) Snapshot(context.Context, string) (model.SchemaSnapshot, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.SchemaSnapshot{}, r.err
	}
	return r.snapshot, nil
}

func (r *mutableSchemaResolver) set(s model.SchemaSnapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot, r.err = s, err
}

// spyIndex records upsert/delete traffic; Query is unused by the trainer.
type spyIndex struct {
	mu      sync.Mutex
	upserts [][]vectorindex.Item
	deletes int
}

func (s *spyIndex) Upsert(_ context.Context, _ string, items []vectorindex.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, items)
	return nil
}

func (s *spyIndex) Query(context.Context, string, string, int, ...vectorindex.ItemKind) ([]vectorindex.ScoredItem, error) {
	return nil, nil
}

func (s *spyIndex) Delete(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return nil
}

func (s *spyIndex) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func twoTableSnapshot() model.SchemaSnapshot {
	return model.SchemaSnapshot{Tables: []model.Table{
		{Name: "customers", Columns: []model.Column{
			{Name: "id", DataType: model.TypeInteger, IsPK: true},
			{Name: "country", DataType: model.TypeText},
		}},
		{Name: "orders", Columns: []model.Column{
			{Name: "id", DataType: model.TypeInteger, IsPK: true},
			{Name: "status", DataType: model.TypeText},
		}},
	}}
}

func testCfg() model.ConnectionConfig {
	return model.ConnectionConfig{Dialect: model.DialectPostgres, Host: "h", Port: 5432, Database: "d", Schema: "public", User: "u"}
}

func newTestTrainer(resolver *mutableSchemaResolver, index *spyIndex) *Trainer {
	return New(resolver, index, nil, process.New(process.Options{}), Options{})
}

func TestEnsureTrained_FirstCallIsFullIngest(t *testing.T) {
	resolver := &mutableSchemaResolver{snapshot: twoTableSnapshot()}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	res, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	assert.Equal(t, KindFull, res.Kind)
	assert.Equal(t, 1, index.deletes)
	assert.Equal(t, 1, index.upsertCount())
}

func TestEnsureTrained_SecondCallSkipsWhenUnchanged(t *testing.T) {
	resolver := &mutableSchemaResolver{snapshot: twoTableSnapshot()}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	res, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, res.Kind)
	assert.Equal(t, 1, index.upsertCount(), "no re-ingest without a schema diff")
}

func TestEnsureTrained_DiffTriggersReingest(t *testing.T) {
	resolver := &mutableSchemaResolver{snapshot: twoTableSnapshot()}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)

	changed := twoTableSnapshot()
	changed.Tables[1].Columns = append(changed.Tables[1].Columns, model.Column{Name: "total", DataType: model.TypeDecimal})
	resolver.set(changed, nil)

	res, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	assert.NotEqual(t, KindSkipped, res.Kind)
	assert.Equal(t, 2, index.upsertCount())
}

func TestEnsureTrained_FailureDoesNotMarkTrained(t *testing.T) {
	resolver := &mutableSchemaResolver{err: errors.New("connection refused")}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.Error(t, err)

	resolver.set(twoTableSnapshot(), nil)
	res, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	assert.Equal(t, KindFull, res.Kind, "retry after failure starts from scratch")
}

func TestEnsureTrained_ConcurrentCallsSingleFlight(t *testing.T) {
	resolver := &mutableSchemaResolver{snapshot: twoTableSnapshot()}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, index.upsertCount(), "concurrent callers share one training run")
}

func TestEnsureTrained_InvalidateForcesFullReingest(t *testing.T) {
	resolver := &mutableSchemaResolver{snapshot: twoTableSnapshot()}
	index := &spyIndex{}
	tr := newTestTrainer(resolver, index)
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	tr.Invalidate(testCfg().Fingerprint())

	res, err := tr.EnsureTrained(context.Background(), testCfg(), profile)
	require.NoError(t, err)
	assert.Equal(t, KindFull, res.Kind)
}

func TestBuildItems_IncludesDDLDocsExamplesAndDisambiguation(t *testing.T) {
	snapshot := model.SchemaSnapshot{Tables: []model.Table{
		{Name: "orders", Columns: []model.Column{
			{Name: "id", DataType: model.TypeInteger, IsPK: true},
			{Name: "customer_id", DataType: model.TypeInteger, IsFK: true},
		}, ForeignKeys: []model.ForeignKey{{Column: "customer_id", RefTable: "customers", RefColumn: "id"}}},
	}}
	tr := newTestTrainer(&mutableSchemaResolver{snapshot: snapshot}, &spyIndex{})
	profile, _ := dialect.New(model.DialectPostgres)

	items := tr.buildItems(snapshot, snapshot.Tables, model.CategoricalValues{}, nil, profile)

	kinds := map[vectorindex.ItemKind]int{}
	for _, it := range items {
		kinds[it.Kind]++
	}
	assert.Equal(t, 1, kinds[vectorindex.KindDDL])
	assert.GreaterOrEqual(t, kinds[vectorindex.KindDoc], 2)
	assert.NotZero(t, kinds[vectorindex.KindExampleQA])

	var sawDisambiguation bool
	for _, it := range items {
		if it.ID == "doc:disambiguation" {
			sawDisambiguation = true
			assert.Contains(t, it.Text, "orders.customer_id references customers.id")
		}
	}
	assert.True(t, sawDisambiguation)
}

func TestDisambiguationNote_PrefixPairs(t *testing.T) {
	snapshot := model.SchemaSnapshot{Tables: []model.Table{
		{Name: "order", Columns: []model.Column{{Name: "id", DataType: model.TypeInteger}}},
		{Name: "order_items", Columns: []model.Column{{Name: "id", DataType: model.TypeInteger}}},
	}}
	note := DisambiguationNote(snapshot)
	assert.Contains(t, note, "order vs order_items")
}

func TestShouldSkipColumn(t *testing.T) {
	assert.True(t, shouldSkipColumn("customer_id"))
	assert.True(t, shouldSkipColumn("created_at"))
	assert.True(t, shouldSkipColumn("id"))
	assert.False(t, shouldSkipColumn("status"))
	assert.False(t, shouldSkipColumn("country"))
}
