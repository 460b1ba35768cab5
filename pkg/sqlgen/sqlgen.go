// Package sqlgen turns a question into a SQL candidate: it retrieves
// context from the vector index, assembles a prompt with pkg/prompt,
// calls the LLM, and extracts a SQLQuery — or a Refusal when the model
// declines.
package sqlgen

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/llmclient"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/prompt"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
)

// Options controls generation. Zero value uses the documented defaults.
type Options struct {
	RetrievalKDDL      int
	RetrievalKExamples int
	TemperatureInitial float64
	TemperatureDelta   float64
	PromptByteBudget   int
	LLMTimeout         time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetrievalKDDL == 0 {
		o.RetrievalKDDL = 10
	}
	if o.RetrievalKExamples == 0 {
		o.RetrievalKExamples = 5
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = 60 * time.Second
	}
	return o
}

// Generator produces SQL candidates from questions.
type Generator struct {
	Index vectorindex.Index
	LLM   llmclient.Client
	Opts  Options
}

// New constructs a Generator.
func New(index vectorindex.Index, llm llmclient.Client, opts Options) *Generator {
	return &Generator{Index: index, LLM: llm, Opts: opts.withDefaults()}
}

// Prior is the (sql, error) pair from a failed attempt, fed back as
// correction context. nil means this is a fresh generation.
type Prior struct {
	SQL       string
	ErrorKind model.QueryErrorKind
	ErrorMsg  string
}

// Candidate is the generator's output: either SQL to validate, or a Refusal.
type Candidate struct {
	SQL     model.SQLQuery
	Refusal bool
}

var sqlVerbPattern = regexp.MustCompile(`(?i)\b(SELECT|WITH|INSERT|UPDATE|DELETE|MERGE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|EXEC|EXECUTE)\b`)

var refusalPhrases = []string{
	"i can't help", "i cannot help", "i'm not able to", "i am not able to",
	"i can't assist", "i cannot assist", "i don't have enough information",
	"could you clarify", "could you please clarify", "can you clarify",
	"i need more information", "as an ai",
}

// Generate produces one candidate for attempt (1-indexed). fingerprint
// selects the vector index namespace; profile names the target dialect and
// supplies bind-rewrite/doc/example context. The generator only ever sees
// schema through retrieved DDL fragments, so callers ingest snapshot text
// via the trainer rather than pass it in here.
func (g *Generator) Generate(ctx context.Context, question, fingerprint string, profile dialect.Profile, attempt int, disambiguation string, prior *Prior) (Candidate, error) {
	ddlItems, err := g.Index.Query(ctx, fingerprint, question, g.Opts.RetrievalKDDL, vectorindex.KindDDL)
	if err != nil {
		return Candidate{}, fmt.Errorf("sqlgen: retrieve ddl: %w", err)
	}
	exampleItems, err := g.Index.Query(ctx, fingerprint, question, g.Opts.RetrievalKExamples, vectorindex.KindExampleQA)
	if err != nil {
		return Candidate{}, fmt.Errorf("sqlgen: retrieve examples: %w", err)
	}
	docItems, err := g.Index.Query(ctx, fingerprint, question, 50, vectorindex.KindDoc)
	if err != nil {
		return Candidate{}, fmt.Errorf("sqlgen: retrieve docs: %w", err)
	}

	b := &prompt.Builder{
		Role:           "You translate analytics questions into a single read-only SQL statement. Never emit INSERT/UPDATE/DELETE/DDL.",
		DialectName:    profile.TranspileTargetName(),
		Documentation:  joinTexts(docItems) + "\n" + profile.DocumentationBlob(),
		Disambiguation: disambiguation,
		ByteBudget:     g.Opts.PromptByteBudget,
	}
	for _, it := range ddlItems {
		b.DDL = append(b.DDL, prompt.DDLFragment{Text: it.Text, Score: it.Score})
	}
	for _, it := range exampleItems {
		q, sql := splitExampleItem(it.Text)
		b.Examples = append(b.Examples, prompt.Example{Question: q, SQL: sql, Score: it.Score})
	}
	for _, ex := range profile.ExampleQueries() {
		b.Examples = append(b.Examples, prompt.Example{Question: ex.Question, SQL: ex.SQL, Score: 1.0})
	}

	if prior != nil {
		b.Prior = &prompt.PriorAttempt{SQL: prior.SQL, ErrorKind: string(prior.ErrorKind), ErrorMsg: prior.ErrorMsg}
	}

	messages := []llmclient.Message{
		{Role: llmclient.RoleUser, Content: b.Render()},
		{Role: llmclient.RoleUser, Content: question},
	}

	temperature := g.Opts.TemperatureInitial
	if attempt > 1 {
		temperature += g.Opts.TemperatureDelta * float64(attempt-1)
	}

	llmCtx, cancel := context.WithTimeout(ctx, g.Opts.LLMTimeout)
	defer cancel()
	text, err := g.LLM.Complete(llmCtx, messages, llmclient.Options{
		Temperature: temperature,
		MaxTokens:   2048,
		StopTokens:  []string{"```\n\n"},
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("sqlgen: llm completion: %w", err)
	}

	sql := extractSQL(text)
	sql = sanitizeBindVariables(sql, profile)
	sql = normalizeWhitespace(sql)

	if isRefusal(text, sql) {
		return Candidate{Refusal: true}, nil
	}

	return Candidate{SQL: model.SQLQuery{Text: sql, Dialect: profile.Name(), GenerationAttempt: attempt}}, nil
}

func joinTexts(items []vectorindex.ScoredItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Text
	}
	return strings.Join(parts, "\n")
}

// splitExampleItem parses a "Q: ...\nSQL: ..." ingested item back into its
// two halves; items ingested any other way are returned as (text, "").
func splitExampleItem(text string) (string, string) {
	const qPrefix, sqlMarker = "Q: ", "\nSQL: "
	if strings.HasPrefix(text, qPrefix) {
		if idx := strings.Index(text, sqlMarker); idx >= 0 {
			return text[len(qPrefix):idx], text[idx+len(sqlMarker):]
		}
	}
	return text, ""
}

var fencedSQLPattern = regexp.MustCompile("(?is)```sql\\s*\\n(.*?)```")

// extractSQL pulls SQL out of a raw completion: a fenced ```sql block takes
// priority; otherwise the longest substring starting at a recognized SQL
// verb is used.
func extractSQL(text string) string {
	if m := fencedSQLPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	loc := sqlVerbPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	candidate := text[loc[0]:]
	// Cut at the first blank line (a paragraph break), which in practice
	// marks the end of SQL and the start of commentary.
	if idx := strings.Index(candidate, "\n\n"); idx >= 0 {
		candidate = candidate[:idx]
	}
	return strings.TrimSpace(candidate)
}

// sanitizeBindVariables rewrites dialect-specific bind markers (Oracle's
// :NAME) into quoted literals before the validator ever sees the text.
func sanitizeBindVariables(sql string, profile dialect.Profile) string {
	shape := profile.BindVariableShape()
	if shape.Pattern == nil {
		return sql
	}
	return shape.Pattern.ReplaceAllStringFunc(sql, func(m string) string {
		name := shape.Pattern.FindStringSubmatch(m)[1]
		return shape.Rewrite(name)
	})
}

var blankLinesPattern = regexp.MustCompile(`\n{3,}`)

// normalizeWhitespace collapses consecutive blank lines and strips every
// trailing semicolon; it does not touch string literal contents
// (no multi-line string literal collapsing occurs since SQL string
// literals never legally contain a bare newline run in the dialects we
// support).
func normalizeWhitespace(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = blankLinesPattern.ReplaceAllString(sql, "\n\n")
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSuffix(sql, ";")
		sql = strings.TrimRight(sql, " \t\n")
	}
	return sql
}

// isRefusal detects a declined or empty response: the extracted SQL is
// empty, the raw text contains one of refusalPhrases, or the response is
// prose-only with no SQL-like verb.
func isRefusal(rawText, extractedSQL string) bool {
	if strings.TrimSpace(extractedSQL) == "" {
		return true
	}
	lower := strings.ToLower(rawText)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return !sqlVerbPattern.MatchString(rawText)
}
