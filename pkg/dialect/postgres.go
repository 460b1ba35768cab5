package dialect

import (
	"fmt"

	"github.com/nlq-sql/queryengine/pkg/model"
)

type postgresProfile struct {
	base
}

func newPostgres() Profile {
	return &postgresProfile{base: base{
		name: model.DialectPostgres,
		keywords: []string{
			"insert", "update", "delete", "drop", "alter", "create", "truncate",
			"grant", "revoke", "exec", "execute", "merge",
		},
	}}
}

func (p *postgresProfile) PaginationClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

func (p *postgresProfile) ExampleQueries() []ExamplePair {
	return []ExamplePair{
		{
			Question: "How many customers are there per country?",
			SQL:      `SELECT country, COUNT(*) FROM customers GROUP BY country`,
		},
		{
			Question: "Top 10 products by revenue",
			SQL:      `SELECT name, SUM(price * qty) AS revenue FROM products GROUP BY name ORDER BY revenue DESC LIMIT 10`,
		},
		{
			Question: "Orders placed in the last 30 days",
			SQL:      `SELECT * FROM orders WHERE created_at >= now() - interval '30 days'`,
		},
	}
}

func (p *postgresProfile) BindVariableShape() BindRewrite {
	// PostgreSQL has no bind markers to rewrite; a live pattern here would
	// mangle ordinary :: casts (price::numeric) via their second colon.
	return BindRewrite{}
}

func (p *postgresProfile) DocumentationBlob() string {
	return `PostgreSQL dialect notes:
- Identifiers are case-sensitive only when double-quoted; unquoted identifiers are folded to lowercase.
- Pagination uses LIMIT n [OFFSET m].
- String concatenation uses the || operator.
- Set operations: UNION [ALL] | INTERSECT | EXCEPT.
- Prefer now() and interval literals for relative dates.`
}

func (p *postgresProfile) TranspileTargetName() string { return "postgres" }
