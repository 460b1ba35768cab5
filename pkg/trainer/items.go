package trainer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/process"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

// buildItems assembles the vector index items for tables: one DDL
// fragment per table, one doc item per table (comment + column
// descriptions, categorical value lists folded in), process
// documentation from discovery, the dialect's documentation blob and
// example Q->SQL pairs, and the disambiguation note.
func (t *Trainer) buildItems(snapshot model.SchemaSnapshot, tables []model.Table, categorical model.CategoricalValues, discovered []process.DiscoveredProcess, profile dialect.Profile) []vectorindex.Item {
	var items []vectorindex.Item

	for _, tb := range tables {
		items = append(items, vectorindex.Item{
			ID:   "ddl:" + tb.Name,
			Kind: vectorindex.KindDDL,
			Text: formatDDL(tb),
		})
		items = append(items, vectorindex.Item{
			ID:   "doc:table:" + tb.Name,
			Kind: vectorindex.KindDoc,
			Text: formatTableDoc(tb, categorical),
		})
	}

	for i, dp := range discovered {
		items = append(items, vectorindex.Item{
			ID:   fmt.Sprintf("doc:process:%d", i),
			Kind: vectorindex.KindDoc,
			Text: formatProcessDoc(dp),
		})
	}

	items = append(items, vectorindex.Item{
		ID:   "doc:dialect",
		Kind: vectorindex.KindDoc,
		Text: profile.DocumentationBlob(),
	})

	if note := DisambiguationNote(snapshot); note != "" {
		items = append(items, vectorindex.Item{
			ID:   "doc:disambiguation",
			Kind: vectorindex.KindDoc,
			Text: note,
		})
	}

	for i, ex := range profile.ExampleQueries() {
		items = append(items, vectorindex.Item{
			ID:   fmt.Sprintf("example:%d", i),
			Kind: vectorindex.KindExampleQA,
			Text: "Q: " + ex.Question + "\nSQL: " + ex.SQL,
		})
	}

	return items
}

func formatDDL(t model.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", t.Name)
	for i, c := range t.Columns {
		nullability := "NOT NULL"
		if c.Nullable {
			nullability = "NULL"
		}
		fmt.Fprintf(&sb, "  %s %s %s", c.Name, c.DataType, nullability)
		if i < len(t.Columns)-1 || len(t.PrimaryKey) > 0 || len(t.ForeignKeys) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	if len(t.PrimaryKey) > 0 {
		fmt.Fprintf(&sb, "  PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", "))
		if len(t.ForeignKeys) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	for i, fk := range t.ForeignKeys {
		fmt.Fprintf(&sb, "  FOREIGN KEY (%s) REFERENCES %s(%s)", fk.Column, fk.RefTable, fk.RefColumn)
		if i < len(t.ForeignKeys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(");")
	return sb.String()
}

func formatTableDoc(t model.Table, categorical model.CategoricalValues) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", t.Name)
	if t.Comment != "" {
		fmt.Fprintf(&sb, "  %s\n", t.Comment)
	}
	for _, c := range t.Columns {
		line := "  - " + c.Name + " (" + string(c.DataType) + ")"
		if c.IsPK {
			line += " [PK]"
		}
		if c.IsFK {
			line += " [FK]"
		}
		if c.Comment != "" {
			line += ": " + c.Comment
		}
		if vals, ok := categorical.Values[model.TableColumn{Table: t.Name, Column: c.Name}]; ok {
			line += " values: " + strings.Join(vals, ", ")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func formatProcessDoc(dp process.DiscoveredProcess) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (table %s, confidence %.2f):\n", dp.Name, dp.MainTable, dp.Confidence)
	if dp.StatusColumn != "" {
		fmt.Fprintf(&sb, "  status column: %s\n", dp.StatusColumn)
	}
	if dp.TransitionPattern != "" {
		fmt.Fprintf(&sb, "  transition columns: from_%s / to_%s\n", dp.TransitionPattern, dp.TransitionPattern)
	}
	if dp.HistoryTable != "" {
		fmt.Fprintf(&sb, "  history table: %s\n", dp.HistoryTable)
	}
	if len(dp.Stages) > 0 {
		fmt.Fprintf(&sb, "  known stages: %s\n", strings.Join(dp.Stages, " -> "))
	}
	if len(dp.Evidence) > 0 {
		fmt.Fprintf(&sb, "  evidence: %s\n", strings.Join(dp.Evidence, "; "))
	}
	return sb.String()
}

// DisambiguationNote summarizes cross-table FK relationships plus table
// and column names that are prefixes or near-duplicates of each other, so
// the generator can resolve ambiguous references without guessing. The
// pipeline coordinator feeds the same note into the generation prompt
// directly; training also ingests it as a doc item.
func DisambiguationNote(snapshot model.SchemaSnapshot) string {
	var sections []string

	var fkLines []string
	for _, t := range snapshot.Tables {
		for _, fk := range t.ForeignKeys {
			fkLines = append(fkLines, fmt.Sprintf("%s.%s references %s.%s", t.Name, fk.Column, fk.RefTable, fk.RefColumn))
		}
	}
	if len(fkLines) > 0 {
		sort.Strings(fkLines)
		sections = append(sections, "Table relationships:\n"+strings.Join(fkLines, "\n"))
	}

	if pairs := nearDuplicateNames(snapshot); len(pairs) > 0 {
		sections = append(sections, "Easily confused names (check which one the question really means):\n"+strings.Join(pairs, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// nearDuplicateNames finds table or column names where one is a strict
// prefix of another (order vs order_items, status vs status_code), the
// most common source of wrong-identifier generations.
func nearDuplicateNames(snapshot model.SchemaSnapshot) []string {
	var names []string
	for _, t := range snapshot.Tables {
		names = append(names, t.Name)
		for _, c := range t.Columns {
			names = append(names, t.Name+"."+c.Name)
		}
	}
	sort.Strings(names)

	var pairs []string
	for i := 0; i < len(names); i++ {
		// Sorted order keeps every name prefixed by names[i] contiguous.
		for j := i + 1; j < len(names) && strings.HasPrefix(names[j], names[i]); j++ {
			a, b := names[i], names[j]
			if strings.HasPrefix(b, a+".") {
				continue // a table and its own columns are not confusable
			}
			if strings.Count(a, ".") != strings.Count(b, ".") {
				continue // only compare tables with tables, columns with columns
			}
			pairs = append(pairs, fmt.Sprintf("%s vs %s", a, b))
		}
	}
	return pairs
}
