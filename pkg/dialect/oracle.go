package dialect

import (
	"fmt"
	"regexp"

	"github.com/nlq-sql/queryengine/pkg/model"
)

type oracleProfile struct {
	base
}

func newOracle() Profile {
	return &oracleProfile{base: base{
		name: model.DialectOracle,
		keywords: []string{
			"insert", "update", "delete", "drop", "alter", "create", "truncate",
			"grant", "revoke", "exec", "execute", "merge",
			"dbms_", "utl_",
		},
	}}
}

func (o *oracleProfile) PaginationClause(n int) string {
	return fmt.Sprintf("FETCH FIRST %d ROWS ONLY", n)
}

func (o *oracleProfile) ExampleQueries() []ExamplePair {
	return []ExamplePair{
		{
			Question: "How many customers are there per country?",
			SQL:      `SELECT country, COUNT(*) FROM customers GROUP BY country`,
		},
		{
			Question: "Top 10 products by revenue",
			SQL:      `SELECT name, SUM(price * qty) r FROM products GROUP BY name ORDER BY r DESC FETCH FIRST 10 ROWS ONLY`,
		},
		{
			Question: "Orders placed in the last 30 days",
			SQL:      `SELECT * FROM orders WHERE created_at >= SYSDATE - 30`,
		},
	}
}

// oracleBindPattern matches Oracle-style bind variables (":NAME") that the
// model may emit despite being instructed not to.
var oracleBindPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

func (o *oracleProfile) BindVariableShape() BindRewrite {
	return BindRewrite{
		Pattern: oracleBindPattern,
		Rewrite: func(name string) string { return "'" + name + "'" },
	}
}

func (o *oracleProfile) DocumentationBlob() string {
	return `Oracle dialect notes:
- Unquoted identifiers are folded to UPPERCASE; quote with "name" to preserve case.
- Pagination uses FETCH FIRST n ROWS ONLY (no LIMIT keyword).
- String concatenation uses the || operator.
- Set operations: UNION [ALL] | INTERSECT | MINUS (no EXCEPT keyword).
- Do not emit bind variables (":name"); use literal values instead.
- Relative dates use SYSDATE arithmetic, not INTERVAL literals.`
}

func (o *oracleProfile) TranspileTargetName() string { return "oracle" }
