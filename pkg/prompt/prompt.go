// Package prompt builds generation prompts from named sections (role,
// dialect, ddl, examples, documentation, disambiguation, prior-attempt)
// serialized deterministically instead of ad hoc string concatenation,
// so prompts are diffable and testable.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Example is one retrieved Q→SQL pair, annotated with its retrieval score
// so Builder can drop the lowest-scoring ones first under a size budget.
type Example struct {
	Question string
	SQL      string
	Score    float64
}

// DDLFragment is one retrieved schema fragment, annotated with its
// retrieval score for the same truncation purpose.
type DDLFragment struct {
	Text  string
	Score float64
}

// PriorAttempt carries the previous generation's SQL and normalized error,
// included only on a correction attempt (never on a fresh one).
type PriorAttempt struct {
	SQL       string
	ErrorKind string
	ErrorMsg  string
}

// Builder assembles a generation prompt from named sections. Zero value is
// usable; ByteBudget of 0 disables truncation.
type Builder struct {
	Role           string
	DialectName    string
	DDL            []DDLFragment
	Examples       []Example
	Documentation  string
	Disambiguation string
	Prior          *PriorAttempt
	ByteBudget     int
}

// Render serializes the prompt deterministically. When ByteBudget is set
// and the naive render exceeds it, DDL fragments are dropped longest-first,
// then examples are dropped lowest-score-first. Dropping never touches
// Role, DialectName, Prior, or Disambiguation, which are assumed small
// and load-bearing.
func (b *Builder) Render() string {
	ddl := append([]DDLFragment(nil), b.DDL...)
	examples := append([]Example(nil), b.Examples...)

	if b.ByteBudget > 0 {
		for len(b.render(ddl, examples)) > b.ByteBudget && (len(ddl) > 0 || len(examples) > 0) {
			if len(ddl) > 0 {
				ddl = dropLongest(ddl)
				continue
			}
			examples = dropLowestScore(examples)
		}
	}
	return b.render(ddl, examples)
}

func (b *Builder) render(ddl []DDLFragment, examples []Example) string {
	var sb strings.Builder

	sb.WriteString("## Role\n")
	sb.WriteString(b.Role)
	sb.WriteString("\n\n")

	sb.WriteString("## Target dialect\n")
	fmt.Fprintf(&sb, "Generate SQL for: %s\n\n", b.DialectName)

	if len(ddl) > 0 {
		sb.WriteString("## Schema (retrieved)\n")
		for _, d := range ddl {
			sb.WriteString(d.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(examples) > 0 {
		sb.WriteString("## Examples\n")
		for _, e := range examples {
			fmt.Fprintf(&sb, "Q: %s\nSQL: %s\n\n", e.Question, e.SQL)
		}
	}

	if b.Documentation != "" {
		sb.WriteString("## Documentation\n")
		sb.WriteString(b.Documentation)
		sb.WriteString("\n\n")
	}

	if b.Disambiguation != "" {
		sb.WriteString("## Disambiguation\n")
		sb.WriteString(b.Disambiguation)
		sb.WriteString("\n\n")
	}

	if b.Prior != nil {
		sb.WriteString("## Prior attempt\n")
		fmt.Fprintf(&sb, "SQL: %s\n", b.Prior.SQL)
		fmt.Fprintf(&sb, "Error (%s): %s\n", b.Prior.ErrorKind, truncate(b.Prior.ErrorMsg, 500))
		sb.WriteString("Fix specifically that class of error; do not otherwise rewrite the query.\n\n")
	}

	return collapseBlankLines(sb.String())
}

func dropLongest(ddl []DDLFragment) []DDLFragment {
	if len(ddl) == 0 {
		return ddl
	}
	longest := 0
	for i, d := range ddl {
		if len(d.Text) > len(ddl[longest].Text) {
			longest = i
		}
	}
	out := append([]DDLFragment(nil), ddl[:longest]...)
	return append(out, ddl[longest+1:]...)
}

func dropLowestScore(examples []Example) []Example {
	if len(examples) == 0 {
		return examples
	}
	lowest := 0
	for i, e := range examples {
		if e.Score < examples[lowest].Score {
			lowest = i
		}
	}
	out := append([]Example(nil), examples[:lowest]...)
	return append(out, examples[lowest+1:]...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// collapseBlankLines collapses consecutive blank lines to one. It runs
// over the whole rendered text, so blank-line runs inside a section's own
// content (documentation, DDL) are collapsed as well as those introduced
// by empty optional sections.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		isBlank := strings.TrimSpace(l) == ""
		if isBlank && blank {
			continue
		}
		out = append(out, l)
		blank = isBlank
	}
	return strings.Join(out, "\n")
}

// SortDDLByScore orders fragments highest-score-first, stable on ties.
func SortDDLByScore(ddl []DDLFragment) {
	sort.SliceStable(ddl, func(i, j int) bool { return ddl[i].Score > ddl[j].Score })
}

// SortExamplesByScore orders examples highest-score-first, stable on ties.
func SortExamplesByScore(examples []Example) {
	sort.SliceStable(examples, func(i, j int) bool { return examples[i].Score > examples[j].Score })
}
