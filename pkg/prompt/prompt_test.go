package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Deterministic(t *testing.T) {
	b := &Builder{
		Role:        "translate questions into SQL",
		DialectName: "postgres",
		DDL:         []DDLFragment{{Text: "CREATE TABLE t (id int);", Score: 0.9}},
		Examples:    []Example{{Question: "count rows", SQL: "SELECT COUNT(*) FROM t", Score: 0.8}},
	}
	assert.Equal(t, b.Render(), b.Render())
}

func TestRender_SectionOrder(t *testing.T) {
	b := &Builder{
		Role:           "role text",
		DialectName:    "oracle",
		DDL:            []DDLFragment{{Text: "CREATE TABLE t (id int);"}},
		Examples:       []Example{{Question: "q", SQL: "SELECT 1"}},
		Documentation:  "doc text",
		Disambiguation: "orders vs order_items",
		Prior:          &PriorAttempt{SQL: "SELECT x", ErrorKind: "syntax_error", ErrorMsg: "bad"},
	}
	out := b.Render()

	sections := []string{"## Role", "## Target dialect", "## Schema (retrieved)", "## Examples", "## Documentation", "## Disambiguation", "## Prior attempt"}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %s", s)
		assert.Greater(t, idx, last, "section %s out of order", s)
		last = idx
	}
}

func TestRender_OmitsEmptySections(t *testing.T) {
	b := &Builder{Role: "r", DialectName: "postgres"}
	out := b.Render()
	assert.NotContains(t, out, "## Schema")
	assert.NotContains(t, out, "## Examples")
	assert.NotContains(t, out, "## Prior attempt")
}

func TestRender_BudgetDropsLongestDDLFirst(t *testing.T) {
	long := strings.Repeat("CREATE TABLE wide (c int); ", 50)
	b := &Builder{
		Role:        "r",
		DialectName: "postgres",
		DDL: []DDLFragment{
			{Text: "CREATE TABLE small (id int);", Score: 0.5},
			{Text: long, Score: 0.9},
		},
		Examples:   []Example{{Question: "q", SQL: "SELECT 1", Score: 0.7}},
		ByteBudget: 400,
	}
	out := b.Render()
	assert.LessOrEqual(t, len(out), 400)
	assert.Contains(t, out, "CREATE TABLE small")
	assert.NotContains(t, out, long)
	// Examples survive while a DDL drop suffices.
	assert.Contains(t, out, "SELECT 1")
}

func TestRender_BudgetDropsLowestScoreExampleAfterDDL(t *testing.T) {
	b := &Builder{
		Role:        "r",
		DialectName: "postgres",
		Examples: []Example{
			{Question: strings.Repeat("important ", 30), SQL: "SELECT 1", Score: 0.9},
			{Question: strings.Repeat("marginal ", 30), SQL: "SELECT 2", Score: 0.1},
		},
		ByteBudget: 420,
	}
	out := b.Render()
	assert.Contains(t, out, "SELECT 1")
	assert.NotContains(t, out, "SELECT 2")
}

func TestRender_TruncatesPriorErrorMessage(t *testing.T) {
	b := &Builder{
		Role:        "r",
		DialectName: "postgres",
		Prior:       &PriorAttempt{SQL: "SELECT 1", ErrorKind: "syntax_error", ErrorMsg: strings.Repeat("x", 600)},
	}
	out := b.Render()
	assert.NotContains(t, out, strings.Repeat("x", 501))
	assert.Contains(t, out, strings.Repeat("x", 500)+"...")
}

func TestSortHelpers(t *testing.T) {
	ddl := []DDLFragment{{Text: "a", Score: 0.1}, {Text: "b", Score: 0.9}}
	SortDDLByScore(ddl)
	assert.Equal(t, "b", ddl[0].Text)

	examples := []Example{{SQL: "a", Score: 0.2}, {SQL: "b", Score: 0.7}}
	SortExamplesByScore(examples)
	assert.Equal(t, "b", examples[0].SQL)
}
