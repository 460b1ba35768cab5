// Package chart recommends a neutral ChartSpec for a materialized
// QueryResult and the original question. The ordered decision policy is a
// chain of pure functions over column statistics computed in stats.go; an
// optional LLM tiebreak for the ambiguous bar/line/area case falls back
// silently to the heuristic default on any error.
package chart

import (
	"context"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/llmclient"
	"github.com/nlq-sql/queryengine/pkg/model"
)

// Advisor recommends a ChartSpec for a QueryResult.
type Advisor struct {
	LLM llmclient.Client // optional; nil disables the tiebreak call
}

// New constructs an Advisor. llm may be nil.
func New(llm llmclient.Client) *Advisor {
	return &Advisor{LLM: llm}
}

// Recommend runs the ordered decision policy against result and question.
func (a *Advisor) Recommend(ctx context.Context, result model.QueryResult, question string) model.ChartSpec {
	stats := computeStats(result)
	lowerQ := strings.ToLower(question)

	// 1. Zero rows.
	if len(result.Rows) == 0 {
		return model.ChartSpec{Type: model.ChartTable, ColorPolicy: model.ColorCategorical}
	}

	numeric := filterNumeric(stats)
	categorical := filterCategorical(stats)
	temporal := filterTemporal(stats)

	// 2. Single row, few numeric columns -> KPI.
	if len(result.Rows) == 1 && len(numeric) >= 1 && len(numeric) <= 4 {
		return model.ChartSpec{Type: model.ChartKPI, YFields: names(numeric), ColorPolicy: model.ColorSemantic}
	}

	// 3. An explicit source/target/value triple. Transition-shaped results
	// (from_x/to_x) are left to the normal tabular policy; the process flow
	// rides the side channel instead of hijacking the chart.
	if hasSourceTargetValue(stats) {
		return model.ChartSpec{
			Type:        model.ChartSankey,
			XField:      firstMatching(stats, "source"),
			YFields:     names(numeric),
			SeriesField: firstMatching(stats, "target"),
			ColorPolicy: model.ColorCategorical,
		}
	}

	// 4. One temporal + numeric -> line/area with annotations.
	if len(temporal) == 1 && len(numeric) >= 1 {
		chartType := model.ChartLine
		if len(numeric) > 1 {
			chartType = model.ChartArea
		}
		chartType = a.tiebreakTimeSeries(ctx, chartType, question)
		ann := model.Annotations{TrendLine: true, Min: true, Max: true}
		if strings.Contains(lowerQ, "anomaly") || hasSkew(result, numeric) {
			ann.AnomalyRegions = true
		}
		return model.ChartSpec{Type: chartType, XField: temporal[0].Name, YFields: names(numeric), Annotations: ann, ColorPolicy: model.ColorSequential}
	}

	// 5. One categorical + one numeric. Beyond 10 categories the bar flips
	// horizontal so labels stay readable.
	if len(categorical) == 1 && len(numeric) == 1 {
		if strings.ContainsAny(lowerQ, "%") || containsAny(lowerQ, "share", "proportion", "percentage", "distribution") {
			return model.ChartSpec{Type: model.ChartPie, XField: categorical[0].Name, YFields: names(numeric), ColorPolicy: model.ColorCategorical}
		}
		spec := model.ChartSpec{Type: model.ChartBar, XField: categorical[0].Name, YFields: names(numeric), ColorPolicy: model.ColorCategorical}
		if categorical[0].Cardinality > 10 {
			spec.Orientation = model.OrientHorizontal
		}
		return spec
	}

	// 6. Two categorical + numeric values.
	if len(categorical) == 2 && len(numeric) >= 1 {
		if categorical[0].Cardinality > 6 && categorical[1].Cardinality > 6 {
			return model.ChartSpec{Type: model.ChartHeatmap, XField: categorical[0].Name, SeriesField: categorical[1].Name, YFields: names(numeric), ColorPolicy: model.ColorSequential}
		}
		return model.ChartSpec{Type: model.ChartBar, XField: categorical[0].Name, SeriesField: categorical[1].Name, YFields: names(numeric), ColorPolicy: model.ColorCategorical}
	}

	// 7. Hierarchical field naming.
	if h := firstHierarchical(stats); h != "" {
		ct := model.ChartTreemap
		if len(numeric) > 1 {
			ct = model.ChartSunburst
		}
		return model.ChartSpec{Type: ct, XField: h, YFields: names(numeric), ColorPolicy: model.ColorSequential}
	}

	// 8. Fallback.
	return model.ChartSpec{Type: model.ChartTable, ColorPolicy: model.ColorCategorical}
}

func filterNumeric(stats []columnStats) []columnStats {
	var out []columnStats
	for _, s := range stats {
		if s.IsNumeric {
			out = append(out, s)
		}
	}
	return out
}

func filterCategorical(stats []columnStats) []columnStats {
	var out []columnStats
	for _, s := range stats {
		if !s.IsNumeric && !s.IsTemporal {
			out = append(out, s)
		}
	}
	return out
}

func filterTemporal(stats []columnStats) []columnStats {
	var out []columnStats
	for _, s := range stats {
		if s.IsTemporal {
			out = append(out, s)
		}
	}
	return out
}

func names(stats []columnStats) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Name
	}
	return out
}

func firstHierarchical(stats []columnStats) string {
	for _, s := range stats {
		if s.IsHierarchical {
			return s.Name
		}
	}
	return ""
}

func hasSourceTargetValue(stats []columnStats) bool {
	return firstMatching(stats, "source") != "" && firstMatching(stats, "target") != ""
}

func firstMatching(stats []columnStats, substrs ...string) string {
	for _, s := range stats {
		lower := strings.ToLower(s.Name)
		for _, sub := range substrs {
			if strings.Contains(lower, sub) {
				return s.Name
			}
		}
	}
	return ""
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasSkew is a coarse check: true if the numeric column's max exceeds 3x
// its median among observed rows, a cheap proxy for "statistically skewed
// values exist" without pulling in a stats library the pack never uses
// for this purpose.
func hasSkew(result model.QueryResult, numeric []columnStats) bool {
	if len(numeric) == 0 {
		return false
	}
	col := numeric[0].Name
	var values []float64
	for _, row := range result.Rows {
		if f, ok := asFloat(row[col]); ok {
			values = append(values, f)
		}
	}
	if len(values) < 3 {
		return false
	}
	median := quickMedian(values)
	if median == 0 {
		return false
	}
	max := values[0]
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max > 3*median
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func quickMedian(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// tiebreakTimeSeries optionally asks the LLM to choose between the
// heuristic default and its alternative when the call is genuinely
// ambiguous (single vs. multi-series time data). Any error or
// out-of-vocabulary answer falls back to def silently.
func (a *Advisor) tiebreakTimeSeries(ctx context.Context, def model.ChartType, question string) model.ChartType {
	if a.LLM == nil {
		return def
	}
	prompt := "Given the question below, should the chart be 'bar', 'line', or 'area'? Reply with exactly one of those words.\nQuestion: " + question
	text, err := a.LLM.Complete(ctx, []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}}, llmclient.Options{Temperature: 0, MaxTokens: 8})
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "bar":
		return model.ChartBar
	case "line":
		return model.ChartLine
	case "area":
		return model.ChartArea
	default:
		return def
	}
}
