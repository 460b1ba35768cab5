package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlq-sql/queryengine/pkg/model"
)

func transitionResult() model.QueryResult {
	return model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "from_status", DataType: model.TypeText},
			{Name: "to_status", DataType: model.TypeText},
			{Name: "count", DataType: model.TypeInteger},
			{Name: "avg_duration_min", DataType: model.TypeDecimal},
		},
		Rows: []model.Row{
			{"from_status": "created", "to_status": "paid", "count": 120, "avg_duration_min": 5.2},
			{"from_status": "paid", "to_status": "shipped", "count": 115, "avg_duration_min": 1440.0},
			{"from_status": "shipped", "to_status": "delivered", "count": 110, "avg_duration_min": 2880.0},
		},
		RowCount: 3,
	}
}

func TestDetect_TransitionStrategy(t *testing.T) {
	flow := Detect(transitionResult(), "order flow", nil)
	require.NotNil(t, flow)
	require.NoError(t, flow.Validate())

	require.Len(t, flow.Nodes, 4)
	assert.Equal(t, model.NodeStart, flow.Nodes[0].Role)
	assert.Equal(t, "created", flow.Nodes[0].ID)
	assert.Equal(t, model.NodeEnd, flow.Nodes[3].Role)
	assert.Equal(t, "delivered", flow.Nodes[3].ID)

	require.Len(t, flow.Edges, 3)
	require.NotNil(t, flow.Edges[0].Count)
	assert.Equal(t, 120, *flow.Edges[0].Count)
	require.NotNil(t, flow.Edges[1].AvgDuration)
	assert.InDelta(t, 1440.0, *flow.Edges[1].AvgDuration, 1e-9)

	require.NotNil(t, flow.BottleneckEdge)
	assert.Equal(t, "shipped", flow.BottleneckEdge.FromID)
	assert.Equal(t, "delivered", flow.BottleneckEdge.ToID)

	// Four-deep chain flips to horizontal.
	assert.Equal(t, model.LayoutHorizontal, flow.LayoutDirection)
}

func TestDetect_GatewayOnFanOut(t *testing.T) {
	r := model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "from_status", DataType: model.TypeText},
			{Name: "to_status", DataType: model.TypeText},
		},
		Rows: []model.Row{
			{"from_status": "review", "to_status": "approved"},
			{"from_status": "review", "to_status": "rejected"},
		},
		RowCount: 2,
	}
	flow := Detect(r, "review outcomes", nil)
	require.NotNil(t, flow)

	var review model.ProcessNode
	for _, n := range flow.Nodes {
		if n.ID == "review" {
			review = n
		}
	}
	// First-seen node is start even with fan-out > 1.
	assert.Equal(t, model.NodeStart, review.Role)
	assert.NotEqual(t, model.LayoutHorizontal, flow.LayoutDirection)
}

func TestDetect_AggregateWithKnownStages(t *testing.T) {
	r := model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "status", DataType: model.TypeText},
			{Name: "count", DataType: model.TypeInteger},
		},
		Rows: []model.Row{
			{"status": "shipped", "count": 20},
			{"status": "created", "count": 90},
			{"status": "paid", "count": 40},
		},
		RowCount: 3,
	}
	discovered := []DiscoveredProcess{{
		Name:   "Order process",
		Stages: []string{"created", "paid", "shipped"},
	}}
	flow := Detect(r, "orders by status", discovered)
	require.NotNil(t, flow)
	require.NoError(t, flow.Validate())

	require.Len(t, flow.Nodes, 3)
	assert.Equal(t, "created", flow.Nodes[0].ID)
	assert.Equal(t, "paid", flow.Nodes[1].ID)
	assert.Equal(t, "shipped", flow.Nodes[2].ID)
	require.NotNil(t, flow.Nodes[0].Metrics.Count)
	assert.Equal(t, 90, *flow.Nodes[0].Metrics.Count)

	// Consecutive known stages get edges.
	require.Len(t, flow.Edges, 2)
	assert.Equal(t, "created", flow.Edges[0].FromID)
	assert.Equal(t, "paid", flow.Edges[0].ToID)
}

func TestDetect_AggregateWithoutStagesHasNoEdges(t *testing.T) {
	r := model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "status", DataType: model.TypeText},
			{Name: "count", DataType: model.TypeInteger},
		},
		Rows: []model.Row{
			{"status": "open", "count": 5},
			{"status": "closed", "count": 50},
		},
		RowCount: 2,
	}
	flow := Detect(r, "tickets by status", nil)
	require.NotNil(t, flow)

	// Edges are never fabricated from row adjacency.
	assert.Empty(t, flow.Edges)
	// Without known stages, nodes order by descending count.
	assert.Equal(t, "closed", flow.Nodes[0].ID)
}

func TestDetect_NoProcessShape(t *testing.T) {
	r := model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "country", DataType: model.TypeText},
			{Name: "revenue", DataType: model.TypeDecimal},
		},
		Rows:     []model.Row{{"country": "AR", "revenue": 1.0}},
		RowCount: 1,
	}
	assert.Nil(t, Detect(r, "revenue by country", nil))
}

func TestDetect_EmptyTransitionRows(t *testing.T) {
	r := model.QueryResult{
		Columns: []model.ColumnDescriptor{
			{Name: "from_status", DataType: model.TypeText},
			{Name: "to_status", DataType: model.TypeText},
		},
	}
	assert.Nil(t, Detect(r, "flow", nil))
}

func TestDetect_EdgeEndpointInvariantHolds(t *testing.T) {
	// Randomized-ish sweep over generated transition tables: the builder
	// must always satisfy the endpoint invariant and the layering.
	statuses := []string{"a", "b", "c", "d", "e", "f"}
	for n := 1; n < len(statuses); n++ {
		var rows []model.Row
		for i := 0; i < n; i++ {
			rows = append(rows, model.Row{
				"from_status": statuses[i],
				"to_status":   statuses[(i*3+1)%len(statuses)],
			})
		}
		r := model.QueryResult{
			Columns: []model.ColumnDescriptor{
				{Name: "from_status", DataType: model.TypeText},
				{Name: "to_status", DataType: model.TypeText},
			},
			Rows:     rows,
			RowCount: n,
		}
		flow := Detect(r, "flow", nil)
		if flow == nil {
			continue
		}
		require.NoError(t, flow.Validate(), "n=%d", n)
	}
}
