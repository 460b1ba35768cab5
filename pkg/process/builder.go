package process

import (
	"sort"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// fromColumnNames / toColumnNames enumerate the column-name spellings the
// result-time detector recognizes for the transition strategy.
var fromColumnNames = []string{"from_status", "from", "source", "from_state"}
var toColumnNames = []string{"to_status", "to", "target", "to_state"}
var countColumnNames = []string{"count", "cnt", "n", "total"}
var durationColumnNames = []string{"avg_duration_min", "avg_duration", "duration", "duration_min"}
var statusColumnNames = []string{"status", "state", "stage", "step", "phase"}

// Detect inspects result's column names for a transition or aggregate
// shape and builds a ProcessFlow when one is found. discovered supplies
// the known stage ordering used by the aggregate strategy. Returns nil
// when no process shape is recognized, or when the builder cannot
// satisfy the node-id/edge-endpoint invariant.
func Detect(result model.QueryResult, question string, discovered []DiscoveredProcess) *model.ProcessFlow {
	fromCol := matchColumn(result, fromColumnNames)
	toCol := matchColumn(result, toColumnNames)
	if fromCol != "" && toCol != "" {
		return buildTransitionFlow(result, fromCol, toCol)
	}

	statusCol := matchColumn(result, statusColumnNames)
	countCol := matchColumn(result, countColumnNames)
	if statusCol != "" && countCol != "" {
		return buildAggregateFlow(result, statusCol, countCol, discovered)
	}

	return nil
}

func matchColumn(result model.QueryResult, candidates []string) string {
	for _, c := range result.Columns {
		lower := strings.ToLower(c.Name)
		for _, cand := range candidates {
			if lower == cand {
				return c.Name
			}
		}
	}
	return ""
}

func buildTransitionFlow(result model.QueryResult, fromCol, toCol string) *model.ProcessFlow {
	countCol := matchColumn(result, countColumnNames)
	durationCol := matchColumn(result, durationColumnNames)

	var order []string
	seen := map[string]bool{}
	fanOut := map[string]int{}
	type edgeRow struct {
		from, to string
		count    *int
		duration *float64
	}
	var edgeRows []edgeRow

	for _, row := range result.Rows {
		from, _ := row[fromCol].(string)
		to, _ := row[toCol].(string)
		if from == "" || to == "" {
			continue
		}
		if !seen[from] {
			seen[from] = true
			order = append(order, from)
		}
		if !seen[to] {
			seen[to] = true
			order = append(order, to)
		}
		fanOut[from]++

		var count *int
		if countCol != "" {
			if n, ok := asInt(row[countCol]); ok {
				count = &n
			}
		}
		var duration *float64
		if durationCol != "" {
			if f, ok := asFloat(row[durationCol]); ok {
				duration = &f
			}
		}
		edgeRows = append(edgeRows, edgeRow{from: from, to: to, count: count, duration: duration})
	}
	if len(order) == 0 {
		return nil
	}

	// A sink is a node that never appears as a "from".
	isSink := map[string]bool{}
	for _, n := range order {
		isSink[n] = fanOut[n] == 0
	}

	nodes := make([]model.ProcessNode, 0, len(order))
	for i, n := range order {
		role := model.NodeTask
		switch {
		case i == 0:
			role = model.NodeStart
		case isSink[n]:
			role = model.NodeEnd
		case fanOut[n] > 1:
			role = model.NodeGateway
		}
		nodes = append(nodes, model.ProcessNode{ID: n, Label: n, Role: role})
	}

	edges := make([]model.ProcessEdge, 0, len(edgeRows))
	var bottleneck *model.ProcessEdge
	var bottleneckDur float64
	for _, er := range edgeRows {
		e := model.ProcessEdge{FromID: er.from, ToID: er.to, Count: er.count, AvgDuration: er.duration}
		edges = append(edges, e)
		if er.duration != nil && (bottleneck == nil || *er.duration > bottleneckDur) {
			idx := len(edges) - 1
			bottleneck = &edges[idx]
			bottleneckDur = *er.duration
		}
	}

	flow := &model.ProcessFlow{Name: "detected process", Nodes: nodes, Edges: edges, BottleneckEdge: bottleneck}
	layout(flow)
	if err := flow.Validate(); err != nil {
		return nil
	}
	return flow
}

// buildAggregateFlow orders nodes by DiscoveredProcess.Stages if known,
// otherwise by descending count, and infers edges only between
// consecutive known stages, never from row adjacency.
func buildAggregateFlow(result model.QueryResult, statusCol, countCol string, discovered []DiscoveredProcess) *model.ProcessFlow {
	type statusCount struct {
		status string
		count  int
	}
	var rows []statusCount
	for _, row := range result.Rows {
		status, _ := row[statusCol].(string)
		if status == "" {
			continue
		}
		count, _ := asInt(row[countCol])
		rows = append(rows, statusCount{status: status, count: count})
	}
	if len(rows) == 0 {
		return nil
	}

	var stages []string
	for _, dp := range discovered {
		if len(dp.Stages) > 0 {
			stages = dp.Stages
			break
		}
	}

	present := map[string]int{}
	for _, r := range rows {
		present[r.status] = r.count
	}

	var order []string
	if len(stages) > 0 {
		for _, s := range stages {
			if _, ok := present[s]; ok {
				order = append(order, s)
			}
		}
	}
	haveKnownStages := len(order) > 0
	if len(order) == 0 {
		order = make([]string, 0, len(rows))
		sorted := append([]statusCount(nil), rows...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].count > sorted[j].count })
		for _, r := range sorted {
			order = append(order, r.status)
		}
	}

	nodes := make([]model.ProcessNode, 0, len(order))
	for i, s := range order {
		role := model.NodeTask
		if i == 0 {
			role = model.NodeStart
		} else if i == len(order)-1 {
			role = model.NodeEnd
		}
		count := present[s]
		nodes = append(nodes, model.ProcessNode{ID: s, Label: s, Role: role, Metrics: model.NodeMetrics{Count: &count}})
	}

	var edges []model.ProcessEdge
	if haveKnownStages {
		for i := 0; i+1 < len(order); i++ {
			edges = append(edges, model.ProcessEdge{FromID: order[i], ToID: order[i+1]})
		}
	}

	flow := &model.ProcessFlow{Name: "detected process", Nodes: nodes, Edges: edges}
	layout(flow)
	if err := flow.Validate(); err != nil {
		return nil
	}
	return flow
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// layout assigns LayoutDirection via a topological layering over the edge
// set (Kahn's algorithm): each node's layer is one more than the max layer
// of its predecessors. If every layer has at most one node and the depth
// exceeds 3 (a long chain), the layout flips to horizontal; otherwise it
// stays vertical.
func layout(flow *model.ProcessFlow) {
	indegree := map[string]int{}
	adjacency := map[string][]string{}
	for _, n := range flow.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range flow.Edges {
		adjacency[e.FromID] = append(adjacency[e.FromID], e.ToID)
		indegree[e.ToID]++
	}

	layerOf := map[string]int{}
	var queue []string
	for _, n := range flow.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
			layerOf[n.ID] = 0
		}
	}
	remaining := map[string]int{}
	for k, v := range indegree {
		remaining[k] = v
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if layerOf[cur]+1 > layerOf[next] {
				layerOf[next] = layerOf[cur] + 1
			}
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	layerCounts := map[int]int{}
	maxLayer := 0
	for _, l := range layerOf {
		layerCounts[l]++
		if l > maxLayer {
			maxLayer = l
		}
	}
	isChain := true
	for _, count := range layerCounts {
		if count > 1 {
			isChain = false
			break
		}
	}

	// Depth counts layers, not edges: a created->paid->shipped->delivered
	// chain is depth 4.
	flow.LayoutDirection = model.LayoutVertical
	if isChain && maxLayer+1 > 3 {
		flow.LayoutDirection = model.LayoutHorizontal
	}
}
