package chart

import (
	"fmt"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// columnStats is the basic per-column statistics the decision policy reads:
// semantic type plus observed cardinality among materialized rows.
type columnStats struct {
	Name           string
	Type           model.SemanticType
	Cardinality    int
	IsNumeric      bool
	IsTemporal     bool
	IsHierarchical bool // name looks like "parent/child" dotted or slashed nesting
}

func computeStats(result model.QueryResult) []columnStats {
	stats := make([]columnStats, len(result.Columns))
	seen := make([]map[string]bool, len(result.Columns))
	for i, c := range result.Columns {
		stats[i] = columnStats{
			Name:           c.Name,
			Type:           c.DataType,
			IsNumeric:      c.DataType == model.TypeInteger || c.DataType == model.TypeDecimal,
			IsTemporal:     c.DataType == model.TypeTimestamp,
			IsHierarchical: strings.ContainsAny(c.Name, "./"),
		}
		seen[i] = make(map[string]bool)
	}
	for _, row := range result.Rows {
		for i, c := range result.Columns {
			v := row[c.Name]
			if v == nil {
				continue
			}
			key := toKey(v)
			if !seen[i][key] {
				seen[i][key] = true
				stats[i].Cardinality++
			}
		}
	}
	return stats
}

func toKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
