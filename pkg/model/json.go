package model

import "encoding/json"

// MarshalJSON emits the stable wire shape downstream renderers consume:
// {type, x, y: [...], series?, annotations: [...], color_policy}.
func (c ChartSpec) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type        ChartType        `json:"type"`
		X           string           `json:"x,omitempty"`
		Y           []string         `json:"y"`
		Series      string           `json:"series,omitempty"`
		Annotations []string         `json:"annotations"`
		ColorPolicy ColorPolicy      `json:"color_policy"`
		Orientation ChartOrientation `json:"orientation,omitempty"`
	}
	w := wire{
		Type:        c.Type,
		X:           c.XField,
		Y:           c.YFields,
		Series:      c.SeriesField,
		Annotations: c.Annotations.names(),
		ColorPolicy: c.ColorPolicy,
		Orientation: c.Orientation,
	}
	if w.Y == nil {
		w.Y = []string{}
	}
	return json.Marshal(w)
}

func (a Annotations) names() []string {
	out := []string{}
	if a.Min {
		out = append(out, "min")
	}
	if a.Max {
		out = append(out, "max")
	}
	if a.Average {
		out = append(out, "average")
	}
	if a.TrendLine {
		out = append(out, "trend_line")
	}
	if a.AnomalyRegions {
		out = append(out, "anomaly_regions")
	}
	return out
}

type wireNode struct {
	ID      string      `json:"id"`
	Label   string      `json:"label"`
	Role    NodeRole    `json:"role"`
	Metrics wireMetrics `json:"metrics"`
}

type wireMetrics struct {
	Count       *int     `json:"count,omitempty"`
	AvgDuration *float64 `json:"avg_duration,omitempty"`
}

type wireEdge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Count    *int     `json:"count,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// MarshalJSON emits the stable wire shape: {name, nodes:[{id,label,role,
// metrics}], edges:[{from,to,count,duration}], bottleneck, layout_direction}.
func (p ProcessFlow) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name            string          `json:"name"`
		Nodes           []wireNode      `json:"nodes"`
		Edges           []wireEdge      `json:"edges"`
		Bottleneck      *wireEdge       `json:"bottleneck,omitempty"`
		LayoutDirection LayoutDirection `json:"layout_direction"`
	}
	w := wire{Name: p.Name, Nodes: []wireNode{}, Edges: []wireEdge{}, LayoutDirection: p.LayoutDirection}
	for _, n := range p.Nodes {
		w.Nodes = append(w.Nodes, wireNode{
			ID:    n.ID,
			Label: n.Label,
			Role:  n.Role,
			Metrics: wireMetrics{
				Count:       n.Metrics.Count,
				AvgDuration: n.Metrics.AvgDuration,
			},
		})
	}
	for _, e := range p.Edges {
		w.Edges = append(w.Edges, wireEdge{From: e.FromID, To: e.ToID, Count: e.Count, Duration: e.AvgDuration})
	}
	if p.BottleneckEdge != nil {
		w.Bottleneck = &wireEdge{
			From:     p.BottleneckEdge.FromID,
			To:       p.BottleneckEdge.ToID,
			Count:    p.BottleneckEdge.Count,
			Duration: p.BottleneckEdge.AvgDuration,
		}
	}
	return json.Marshal(w)
}
