package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_IgnoresCredentials(t *testing.T) {
	a := ConnectionConfig{Dialect: DialectPostgres, Host: "h", Port: 5432, Database: "d", Schema: "s", User: "u", Credentials: "secret1"}
	b := a
	b.Credentials = "secret2"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := a
	c.Database = "other"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestConnectionString_ExcludesCredentials(t *testing.T) {
	c := ConnectionConfig{Dialect: DialectPostgres, Host: "h", Port: 5432, Database: "d", Schema: "s", User: "u", Credentials: "hunter2"}
	assert.NotContains(t, c.String(), "hunter2")
}

func TestDiff_DetectsAddRemoveModify(t *testing.T) {
	old := SchemaSnapshot{Tables: []Table{
		{Name: "a", Columns: []Column{{Name: "id", DataType: TypeInteger}}},
		{Name: "b", Columns: []Column{{Name: "id", DataType: TypeInteger}}},
	}}
	new := SchemaSnapshot{Tables: []Table{
		{Name: "b", Columns: []Column{{Name: "id", DataType: TypeText}}},
		{Name: "c", Columns: []Column{{Name: "id", DataType: TypeInteger}}},
	}}

	d := Diff(old, new)
	assert.Equal(t, []string{"c"}, d.AddedTables)
	assert.Equal(t, []string{"a"}, d.RemovedTables)
	assert.Equal(t, []string{"b"}, d.ModifiedTables)
	assert.False(t, d.Empty())
	assert.InDelta(t, 1.5, d.ChangedTableRatio(2), 1e-9)
}

func TestDiff_IdenticalSnapshotsAreEmpty(t *testing.T) {
	s := SchemaSnapshot{Tables: []Table{
		{Name: "a", Columns: []Column{{Name: "id", DataType: TypeInteger, IsPK: true}},
			ForeignKeys: []ForeignKey{{Column: "x", RefTable: "y", RefColumn: "id"}}},
	}}
	assert.True(t, Diff(s, s).Empty())
}

func TestDiff_FKChangeIsModification(t *testing.T) {
	old := SchemaSnapshot{Tables: []Table{{Name: "a", Columns: []Column{{Name: "id"}}}}}
	new := SchemaSnapshot{Tables: []Table{{Name: "a", Columns: []Column{{Name: "id"}},
		ForeignKeys: []ForeignKey{{Column: "id", RefTable: "b", RefColumn: "id"}}}}}
	assert.Equal(t, []string{"a"}, Diff(old, new).ModifiedTables)
}

func TestHash_StableAcrossTableOrder(t *testing.T) {
	a := SchemaSnapshot{Tables: []Table{
		{Name: "x", Columns: []Column{{Name: "id", DataType: TypeInteger}}},
		{Name: "y", Columns: []Column{{Name: "id", DataType: TypeInteger}}},
	}}
	b := SchemaSnapshot{Tables: []Table{a.Tables[1], a.Tables[0]}}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestProcessFlowValidate_RejectsDanglingEdge(t *testing.T) {
	flow := &ProcessFlow{
		Nodes: []ProcessNode{{ID: "a"}, {ID: "b"}},
		Edges: []ProcessEdge{{FromID: "a", ToID: "missing"}},
	}
	assert.Error(t, flow.Validate())

	flow.Edges[0].ToID = "b"
	assert.NoError(t, flow.Validate())
}

func TestQueryError_Recoverable(t *testing.T) {
	recoverable := []QueryErrorKind{ErrSyntax, ErrUnknownIdentifier, ErrTypeMismatch, ErrValidationRejection, ErrRefusal}
	for _, k := range recoverable {
		assert.True(t, (&QueryError{Kind: k}).Recoverable(), string(k))
	}
	fatal := []QueryErrorKind{ErrPermissionDenied, ErrTimeout, ErrConnectionLost}
	for _, k := range fatal {
		assert.False(t, (&QueryError{Kind: k}).Recoverable(), string(k))
	}
}

func TestChartSpecJSON_WireShape(t *testing.T) {
	spec := ChartSpec{
		Type:        ChartLine,
		XField:      "day",
		YFields:     []string{"orders"},
		Annotations: Annotations{Min: true, Max: true, TrendLine: true},
		ColorPolicy: ColorSequential,
	}
	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "line", wire["type"])
	assert.Equal(t, "day", wire["x"])
	assert.Equal(t, []any{"orders"}, wire["y"])
	assert.Equal(t, []any{"min", "max", "trend_line"}, wire["annotations"])
	assert.Equal(t, "sequential", wire["color_policy"])
	_, hasSeries := wire["series"]
	assert.False(t, hasSeries)
	_, hasOrientation := wire["orientation"]
	assert.False(t, hasOrientation, "vertical default stays off the wire")
}

func TestChartSpecJSON_HorizontalOrientationOnWire(t *testing.T) {
	spec := ChartSpec{
		Type:        ChartBar,
		XField:      "product",
		YFields:     []string{"sales"},
		ColorPolicy: ColorCategorical,
		Orientation: OrientHorizontal,
	}
	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "horizontal", wire["orientation"])
}

func TestProcessFlowJSON_WireShape(t *testing.T) {
	count := 120
	dur := 5.2
	flow := ProcessFlow{
		Name: "order process",
		Nodes: []ProcessNode{
			{ID: "created", Label: "created", Role: NodeStart, Metrics: NodeMetrics{Count: &count}},
			{ID: "paid", Label: "paid", Role: NodeEnd},
		},
		Edges:           []ProcessEdge{{FromID: "created", ToID: "paid", Count: &count, AvgDuration: &dur}},
		LayoutDirection: LayoutVertical,
	}
	flow.BottleneckEdge = &flow.Edges[0]

	data, err := json.Marshal(flow)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "order process", wire["name"])
	assert.Equal(t, "vertical", wire["layout_direction"])

	nodes := wire["nodes"].([]any)
	require.Len(t, nodes, 2)
	first := nodes[0].(map[string]any)
	assert.Equal(t, "created", first["id"])
	assert.Equal(t, "start", first["role"])

	edges := wire["edges"].([]any)
	require.Len(t, edges, 1)
	edge := edges[0].(map[string]any)
	assert.Equal(t, "created", edge["from"])
	assert.Equal(t, "paid", edge["to"])
	assert.EqualValues(t, 120, edge["count"])
	assert.EqualValues(t, 5.2, edge["duration"])

	bottleneck := wire["bottleneck"].(map[string]any)
	assert.Equal(t, "created", bottleneck["from"])
}
