package sqlgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/llmclient"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
	"github.com/nlq-sql/queryengine/pkg/vectorindex/hashembed"
	"github.com/nlq-sql/queryengine/pkg/vectorindex/memoryindex"
)

type scriptedLLM struct {
	response string
	lastOpts llmclient.Options
	prompt   string
}

func (s *scriptedLLM) Complete(_ context.Context, messages []llmclient.Message, opts llmclient.Options) (string, error) {
	s.lastOpts = opts
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	s.prompt = sb.String()
	return s.response, nil
}

func (s *scriptedLLM) Stream(context.Context, []llmclient.Message, llmclient.Options) (<-chan llmclient.Chunk, error) {
	panic("not used")
}

func newTestGenerator(t *testing.T, llm llmclient.Client) *Generator {
	t.Helper()
	index := memoryindex.New(hashembed.New())
	err := index.Upsert(context.Background(), "fp", []vectorindex.Item{
		{ID: "ddl:customers", Kind: vectorindex.KindDDL, Text: "CREATE TABLE customers (id integer, country text);"},
		{ID: "example:0", Kind: vectorindex.KindExampleQA, Text: "Q: how many customers\nSQL: SELECT COUNT(*) FROM customers"},
	})
	require.NoError(t, err)
	return New(index, llm, Options{})
}

func TestExtractSQL_FencedBlockWins(t *testing.T) {
	got := extractSQL("Here you go:\n```sql\nSELECT 1\n```\nhope that helps")
	assert.Equal(t, "SELECT 1", got)
}

func TestExtractSQL_BareVerb(t *testing.T) {
	got := extractSQL("Sure: SELECT id FROM t WHERE x = 1")
	assert.Equal(t, "SELECT id FROM t WHERE x = 1", got)
}

func TestExtractSQL_CutsAtParagraphBreak(t *testing.T) {
	got := extractSQL("SELECT id FROM t\n\nThis query selects ids.")
	assert.Equal(t, "SELECT id FROM t", got)
}

func TestExtractSQL_NoVerbIsEmpty(t *testing.T) {
	assert.Equal(t, "", extractSQL("I have no idea."))
}

func TestNormalizeWhitespace_StripsTrailingSemicolons(t *testing.T) {
	assert.Equal(t, "SELECT 1", normalizeWhitespace("SELECT 1;\n"))
	assert.Equal(t, "SELECT 1", normalizeWhitespace("SELECT 1;;"))
}

func TestNormalizeWhitespace_CollapsesBlankRuns(t *testing.T) {
	assert.Equal(t, "SELECT a\n\nFROM t", normalizeWhitespace("SELECT a\n\n\n\nFROM t"))
}

func TestGenerate_OracleBindVariablesRewritten(t *testing.T) {
	llm := &scriptedLLM{response: "SELECT * FROM orders WHERE status = :STATUS"}
	g := newTestGenerator(t, llm)
	profile, err := dialect.New(model.DialectOracle)
	require.NoError(t, err)

	cand, err := g.Generate(context.Background(), "open orders", "fp", profile, 1, "", nil)
	require.NoError(t, err)
	require.False(t, cand.Refusal)
	assert.Equal(t, "SELECT * FROM orders WHERE status = 'STATUS'", cand.SQL.Text)
	assert.Equal(t, model.DialectOracle, cand.SQL.Dialect)
	assert.Equal(t, 1, cand.SQL.GenerationAttempt)
}

func TestGenerate_PostgresCastSurvivesSanitization(t *testing.T) {
	llm := &scriptedLLM{response: "SELECT AVG(price::numeric) FROM products"}
	g := newTestGenerator(t, llm)
	profile, err := dialect.New(model.DialectPostgres)
	require.NoError(t, err)

	cand, err := g.Generate(context.Background(), "average price", "fp", profile, 1, "", nil)
	require.NoError(t, err)
	require.False(t, cand.Refusal)
	assert.Equal(t, "SELECT AVG(price::numeric) FROM products", cand.SQL.Text)
}

func TestGenerate_RefusalDetected(t *testing.T) {
	llm := &scriptedLLM{response: "Could you clarify which table you mean?"}
	g := newTestGenerator(t, llm)
	profile, _ := dialect.New(model.DialectPostgres)

	cand, err := g.Generate(context.Background(), "huh", "fp", profile, 1, "", nil)
	require.NoError(t, err)
	assert.True(t, cand.Refusal)
}

func TestGenerate_TemperatureRisesOnRetry(t *testing.T) {
	llm := &scriptedLLM{response: "SELECT 1"}
	index := memoryindex.New(hashembed.New())
	g := New(index, llm, Options{TemperatureInitial: 0.0, TemperatureDelta: 0.2})
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := g.Generate(context.Background(), "q", "fp", profile, 1, "", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, llm.lastOpts.Temperature, 1e-9)

	_, err = g.Generate(context.Background(), "q", "fp", profile, 3, "", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, llm.lastOpts.Temperature, 1e-9)
}

func TestGenerate_PriorAttemptAppearsInPrompt(t *testing.T) {
	llm := &scriptedLLM{response: "SELECT created_at FROM orders"}
	g := newTestGenerator(t, llm)
	profile, _ := dialect.New(model.DialectPostgres)

	prior := &Prior{SQL: "SELECT created FROM orders", ErrorKind: model.ErrUnknownIdentifier, ErrorMsg: "column 'created' not found"}
	_, err := g.Generate(context.Background(), "when were orders created", "fp", profile, 2, "", prior)
	require.NoError(t, err)
	assert.Contains(t, llm.prompt, "Prior attempt")
	assert.Contains(t, llm.prompt, "SELECT created FROM orders")
	assert.Contains(t, llm.prompt, "column 'created' not found")
}

func TestGenerate_FreshAttemptHasNoPriorSection(t *testing.T) {
	llm := &scriptedLLM{response: "SELECT 1"}
	g := newTestGenerator(t, llm)
	profile, _ := dialect.New(model.DialectPostgres)

	_, err := g.Generate(context.Background(), "anything", "fp", profile, 1, "", nil)
	require.NoError(t, err)
	assert.NotContains(t, llm.prompt, "Prior attempt")
}

func TestSplitExampleItem(t *testing.T) {
	q, sql := splitExampleItem("Q: how many\nSQL: SELECT COUNT(*) FROM t")
	assert.Equal(t, "how many", q)
	assert.Equal(t, "SELECT COUNT(*) FROM t", sql)

	q, sql = splitExampleItem("not an example")
	assert.Equal(t, "not an example", q)
	assert.Equal(t, "", sql)
}
