package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/llmclient"
	"github.com/nlq-sql/queryengine/pkg/model"
)

// describeRowCap bounds how many result rows are serialized into the
// description prompt; beyond it the prompt says how many were omitted.
const describeRowCap = 50

// Describer produces the streamed natural-language explanation of a
// QueryResult. It is invoked separately from Process, after the result is
// materialized, so the ordering guarantee (description never begins
// before the result exists) holds by construction.
type Describer struct {
	LLM llmclient.Client
}

// NewDescriber constructs a Describer.
func NewDescriber(llm llmclient.Client) *Describer {
	return &Describer{LLM: llm}
}

// Describe streams a natural-language explanation of result in the context
// of question. The returned channel yields text chunks and terminates with
// a Done chunk; cancelling ctx aborts the underlying HTTP stream.
func (d *Describer) Describe(ctx context.Context, result model.QueryResult, question string) (<-chan llmclient.Chunk, error) {
	messages := []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: "You explain SQL query results to business users. Be concise and concrete; lead with the main finding. Do not restate the SQL."},
		{Role: llmclient.RoleUser, Content: describePrompt(result, question)},
	}
	return d.LLM.Stream(ctx, messages, llmclient.Options{Temperature: 0.3, MaxTokens: 1024})
}

func describePrompt(result model.QueryResult, question string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", question)

	names := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		names[i] = c.Name
	}
	fmt.Fprintf(&sb, "Result (%d rows", result.RowCount)
	if result.Truncated {
		sb.WriteString(", truncated at the row cap")
	}
	sb.WriteString("):\n")
	sb.WriteString(strings.Join(names, " | "))
	sb.WriteString("\n")

	shown := result.Rows
	if len(shown) > describeRowCap {
		shown = shown[:describeRowCap]
	}
	for _, row := range shown {
		cells := make([]string, len(names))
		for i, n := range names {
			cells[i] = fmt.Sprintf("%v", row[n])
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if omitted := len(result.Rows) - len(shown); omitted > 0 {
		fmt.Fprintf(&sb, "... and %d more rows\n", omitted)
	}

	sb.WriteString("\nExplain what this result says, in a short paragraph.")
	return sb.String()
}
