package chart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nlq-sql/queryengine/pkg/model"
)

func result(cols []model.ColumnDescriptor, rows []model.Row) model.QueryResult {
	return model.QueryResult{Columns: cols, Rows: rows, RowCount: len(rows)}
}

func TestRecommend_ZeroRowsIsTable(t *testing.T) {
	a := New(nil)
	spec := a.Recommend(context.Background(), result([]model.ColumnDescriptor{{Name: "x", DataType: model.TypeText}}, nil), "anything")
	assert.Equal(t, model.ChartTable, spec.Type)
}

func TestRecommend_SingleRowFewNumericsIsKPI(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "revenue", DataType: model.TypeDecimal},
			{Name: "orders", DataType: model.TypeInteger},
		},
		[]model.Row{{"revenue": 120000.5, "orders": 310}},
	)
	spec := a.Recommend(context.Background(), r, "total revenue and orders")
	assert.Equal(t, model.ChartKPI, spec.Type)
	assert.ElementsMatch(t, []string{"revenue", "orders"}, spec.YFields)
}

func TestRecommend_SourceTargetIsSankey(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "source", DataType: model.TypeText},
			{Name: "target", DataType: model.TypeText},
			{Name: "value", DataType: model.TypeInteger},
		},
		[]model.Row{
			{"source": "a", "target": "b", "value": 10},
			{"source": "b", "target": "c", "value": 6},
		},
	)
	spec := a.Recommend(context.Background(), r, "flow between stages")
	assert.Equal(t, model.ChartSankey, spec.Type)
	assert.Equal(t, "source", spec.XField)
	assert.Equal(t, "target", spec.SeriesField)
}

func TestRecommend_TemporalPlusNumericIsLine(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "day", DataType: model.TypeTimestamp},
			{Name: "orders", DataType: model.TypeInteger},
		},
		[]model.Row{
			{"day": time.Now(), "orders": 10},
			{"day": time.Now(), "orders": 11},
		},
	)
	spec := a.Recommend(context.Background(), r, "orders per day")
	assert.Equal(t, model.ChartLine, spec.Type)
	assert.Equal(t, "day", spec.XField)
	assert.True(t, spec.Annotations.TrendLine)
	assert.True(t, spec.Annotations.Min)
	assert.True(t, spec.Annotations.Max)
}

func TestRecommend_AnomalyQuestionAddsAnomalyRegions(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "day", DataType: model.TypeTimestamp},
			{Name: "orders", DataType: model.TypeInteger},
		},
		[]model.Row{{"day": time.Now(), "orders": 10}, {"day": time.Now(), "orders": 12}},
	)
	spec := a.Recommend(context.Background(), r, "any anomaly in daily orders?")
	assert.True(t, spec.Annotations.AnomalyRegions)
}

func TestRecommend_CategoricalPlusNumericIsBar(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "country", DataType: model.TypeText},
			{Name: "count", DataType: model.TypeInteger},
		},
		[]model.Row{
			{"country": "AR", "count": 12},
			{"country": "BR", "count": 30},
		},
	)
	spec := a.Recommend(context.Background(), r, "How many customers per country?")
	assert.Equal(t, model.ChartBar, spec.Type)
	assert.Equal(t, "country", spec.XField)
	assert.Equal(t, []string{"count"}, spec.YFields)
	assert.Equal(t, model.ColorCategorical, spec.ColorPolicy)
}

func TestRecommend_ManyCategoriesFlipsBarHorizontal(t *testing.T) {
	a := New(nil)
	cols := []model.ColumnDescriptor{
		{Name: "product", DataType: model.TypeText},
		{Name: "sales", DataType: model.TypeInteger},
	}
	var rows []model.Row
	for i := 0; i < 12; i++ {
		rows = append(rows, model.Row{"product": fmt.Sprintf("p%d", i), "sales": i})
	}
	spec := a.Recommend(context.Background(), result(cols, rows), "sales per product")
	assert.Equal(t, model.ChartBar, spec.Type)
	assert.Equal(t, model.OrientHorizontal, spec.Orientation)

	few := a.Recommend(context.Background(), result(cols, rows[:3]), "sales per product")
	assert.Equal(t, model.ChartBar, few.Type)
	assert.Empty(t, few.Orientation)
}

func TestRecommend_ShareQuestionIsPie(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "country", DataType: model.TypeText},
			{Name: "count", DataType: model.TypeInteger},
		},
		[]model.Row{{"country": "AR", "count": 12}, {"country": "BR", "count": 30}},
	)
	spec := a.Recommend(context.Background(), r, "share of customers by country")
	assert.Equal(t, model.ChartPie, spec.Type)
}

func TestRecommend_TwoHighCardinalityCategoricalsIsHeatmap(t *testing.T) {
	a := New(nil)
	cols := []model.ColumnDescriptor{
		{Name: "region", DataType: model.TypeText},
		{Name: "product", DataType: model.TypeText},
		{Name: "sales", DataType: model.TypeInteger},
	}
	var rows []model.Row
	regions := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	products := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i := range regions {
		rows = append(rows, model.Row{"region": regions[i], "product": products[i], "sales": i})
	}
	spec := a.Recommend(context.Background(), result(cols, rows), "sales by region and product")
	assert.Equal(t, model.ChartHeatmap, spec.Type)
}

func TestRecommend_FallbackIsTable(t *testing.T) {
	a := New(nil)
	r := result(
		[]model.ColumnDescriptor{
			{Name: "a", DataType: model.TypeText},
			{Name: "b", DataType: model.TypeText},
			{Name: "c", DataType: model.TypeText},
		},
		[]model.Row{{"a": "x", "b": "y", "c": "z"}, {"a": "q", "b": "w", "c": "e"}},
	)
	spec := a.Recommend(context.Background(), r, "show me everything")
	assert.Equal(t, model.ChartTable, spec.Type)
}
