package process

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlq-sql/queryengine/pkg/model"
)

func orderSchema() model.SchemaSnapshot {
	return model.SchemaSnapshot{Tables: []model.Table{
		{
			Name: "orders",
			Columns: []model.Column{
				{Name: "id", DataType: model.TypeInteger, IsPK: true},
				{Name: "status", DataType: model.TypeText},
				{Name: "created_at", DataType: model.TypeTimestamp},
				{Name: "updated_at", DataType: model.TypeTimestamp},
				{Name: "customer_id", DataType: model.TypeInteger, IsFK: true},
			},
			ForeignKeys: []model.ForeignKey{{Column: "customer_id", RefTable: "customers", RefColumn: "id"}},
		},
		{
			Name: "customers",
			Columns: []model.Column{
				{Name: "id", DataType: model.TypeInteger, IsPK: true},
				{Name: "region_id", DataType: model.TypeInteger, IsFK: true},
			},
			ForeignKeys: []model.ForeignKey{{Column: "region_id", RefTable: "regions", RefColumn: "id"}},
		},
		{
			Name: "regions",
			Columns: []model.Column{
				{Name: "id", DataType: model.TypeInteger, IsPK: true},
			},
		},
	}}
}

func orderCategorical() model.CategoricalValues {
	return model.CategoricalValues{Values: map[model.TableColumn][]string{
		{Table: "orders", Column: "status"}: {"created", "paid", "shipped", "delivered"},
	}}
}

func TestDiscover_StatusColumnWithTimestampsAndFKChain(t *testing.T) {
	d := New(Options{})
	processes := d.Discover("fp", orderSchema(), orderCategorical())
	require.NotEmpty(t, processes)

	var orders DiscoveredProcess
	found := false
	for _, p := range processes {
		if p.MainTable == "orders" {
			orders = p
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "status", orders.StatusColumn)
	assert.GreaterOrEqual(t, orders.Confidence, 0.4)
	assert.Equal(t, []string{"created", "paid", "shipped", "delivered"}, orders.Stages)
	assert.NotEmpty(t, orders.Evidence)
}

func TestDiscover_TransitionPairDetected(t *testing.T) {
	snapshot := model.SchemaSnapshot{Tables: []model.Table{
		{
			Name: "shipment_events",
			Columns: []model.Column{
				{Name: "from_state", DataType: model.TypeText},
				{Name: "to_state", DataType: model.TypeText},
				{Name: "created_at", DataType: model.TypeTimestamp},
			},
		},
	}}
	d := New(Options{})
	processes := d.Discover("fp", snapshot, model.CategoricalValues{})
	require.Len(t, processes, 1)
	assert.Equal(t, "state", processes[0].TransitionPattern)
}

func TestDiscover_NoSignalsNoProcess(t *testing.T) {
	snapshot := model.SchemaSnapshot{Tables: []model.Table{
		{
			Name: "products",
			Columns: []model.Column{
				{Name: "id", DataType: model.TypeInteger, IsPK: true},
				{Name: "price", DataType: model.TypeDecimal},
			},
		},
	}}
	d := New(Options{})
	assert.Empty(t, d.Discover("fp", snapshot, model.CategoricalValues{}))
}

func TestDiscover_CacheHitWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewWithClock(Options{CacheTTL: 600 * time.Second}, clock)

	first := d.Discover("fp", orderSchema(), orderCategorical())
	// A second call with an empty snapshot still returns the cached result.
	second := d.Discover("fp", model.SchemaSnapshot{}, model.CategoricalValues{})
	assert.Equal(t, first, second)
}

func TestDiscover_CacheExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewWithClock(Options{CacheTTL: 600 * time.Second}, clock)

	d.Discover("fp", orderSchema(), orderCategorical())
	clock.Advance(601 * time.Second)
	stale := d.Discover("fp", model.SchemaSnapshot{}, model.CategoricalValues{})
	assert.Empty(t, stale)
}

func TestDiscover_InvalidateEvictsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewWithClock(Options{}, clock)

	d.Discover("fp", orderSchema(), orderCategorical())
	d.Invalidate("fp")
	fresh := d.Discover("fp", model.SchemaSnapshot{}, model.CategoricalValues{})
	assert.Empty(t, fresh)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Order process", humanize("orders"))
	assert.Equal(t, "Shipment event process", humanize("shipment_events"))
}
