// Package validator checks generated SQL through four sequential layers
// (keyword deny-list, pattern deny-list, AST inspection, dialect
// transpile) that together guarantee no write-capable SQL ever reaches
// the executor. The AST and transpile layers parse with pg_query, the
// real PostgreSQL grammar.
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// Validator runs the four-layer check.
type Validator struct{}

// New constructs a Validator. It is stateless and safe for concurrent use.
func New() *Validator { return &Validator{} }

// Validate runs all four layers against sql, targeting dialect. On success
// it returns the transpiled, dialect-correct SQL text that is guaranteed
// safe to execute. On failure it returns a *model.QueryError with
// Kind == ErrValidationRejection and Layer naming the failing layer.
func (v *Validator) Validate(sql string, target model.Dialect) (string, *model.QueryError) {
	if qerr := checkKeywords(sql, target); qerr != nil {
		return "", qerr
	}
	if qerr := checkPatterns(sql); qerr != nil {
		return "", qerr
	}
	tree, qerr := checkAST(sql)
	if qerr != nil {
		return "", qerr
	}
	out, qerr := transpile(tree, target)
	if qerr != nil {
		return "", qerr
	}
	return out, nil
}

func rejection(layer model.ValidationLayer, format string, args ...any) *model.QueryError {
	return &model.QueryError{
		Kind:    model.ErrValidationRejection,
		Layer:   layer,
		Message: fmt.Sprintf(format, args...),
	}
}

// --- Layer 1: keyword deny-list ---------------------------------------

var commonDeniedKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "exec", "execute", "merge",
}

var oracleDeniedPrefixes = []string{"dbms_", "utl_"}

// checkKeywords is deliberately literal-unaware: a denied keyword is
// rejected even inside a string literal. Only the pattern layer does
// literal-aware matching; layer 1 stays a blunt token check.
func checkKeywords(sql string, target model.Dialect) *model.QueryError {
	keywords := append([]string(nil), commonDeniedKeywords...)
	if target == model.DialectOracle {
		keywords = append(keywords, oracleDeniedPrefixes...)
	}
	for _, kw := range keywords {
		var re *regexp.Regexp
		if kw == "dbms_" || kw == "utl_" {
			re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\w*`)
		} else {
			re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		}
		if re.MatchString(sql) {
			return rejection(model.LayerKeyword, "denied keyword %q", kw)
		}
	}
	return nil
}

// --- Layer 2: pattern deny-list -----------------------------------------

var intoOutputPattern = regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b`)
var xpPrefixPattern = regexp.MustCompile(`(?i)\bxp_\w*`)
var dangerousFuncPattern = regexp.MustCompile(`(?i)\b(pg_terminate_backend|pg_cancel_backend|pg_reload_conf|lo_import|lo_export|dblink_exec|dblink_connect)\s*\(`)

func checkPatterns(sql string) *model.QueryError {
	ranges := literalRanges(sql)

	// Statement separator: any ';' that is not the single trailing
	// terminator (already stripped by the generator, but defended here
	// too) is rejected. A ';' inside a string literal is fine.
	trimmed := strings.TrimRight(sql, " \t\n\r")
	for i, c := range sql {
		if c != ';' || insideLiteral(ranges, i) {
			continue
		}
		if i != len(trimmed)-1 {
			return rejection(model.LayerPattern, "embedded statement separator")
		}
	}

	for _, loc := range regexp.MustCompile(`--`).FindAllStringIndex(sql, -1) {
		if !insideLiteral(ranges, loc[0]) {
			return rejection(model.LayerPattern, "line comment not permitted")
		}
	}
	for _, loc := range regexp.MustCompile(`/\*`).FindAllStringIndex(sql, -1) {
		if !insideLiteral(ranges, loc[0]) {
			return rejection(model.LayerPattern, "block comment not permitted")
		}
	}
	for _, loc := range intoOutputPattern.FindAllStringIndex(sql, -1) {
		if !insideLiteral(ranges, loc[0]) {
			return rejection(model.LayerPattern, "file-write clause not permitted")
		}
	}
	for _, loc := range xpPrefixPattern.FindAllStringIndex(sql, -1) {
		if !insideLiteral(ranges, loc[0]) {
			return rejection(model.LayerPattern, "extended procedure not permitted")
		}
	}
	for _, loc := range dangerousFuncPattern.FindAllStringIndex(sql, -1) {
		if !insideLiteral(ranges, loc[0]) {
			return rejection(model.LayerPattern, "administrative function call not permitted")
		}
	}
	return nil
}

// --- Layer 3: AST inspection ---------------------------------------------

var forbiddenNodeTypes = map[string]bool{
	"InsertStmt": true, "UpdateStmt": true, "DeleteStmt": true,
	"DropStmt": true, "AlterTableStmt": true, "AlterTableCmd": true,
	"AlterObjectSchemaStmt": true, "AlterOwnerStmt": true,
	"CreateStmt": true, "CreateTableAsStmt": true, "TruncateStmt": true,
	"MergeStmt": true, "DoStmt": true, "CallStmt": true, "CopyStmt": true,
	"GrantStmt": true, "GrantRoleStmt": true, "VacuumStmt": true,
	"IndexStmt": true, "ViewStmt": true, "RuleStmt": true,
	"CreateFunctionStmt": true, "AlterFunctionStmt": true,
	"CreateTrigStmt": true, "CreateSeqStmt": true, "AlterSeqStmt": true,
	"RenameStmt": true, "CommentStmt": true, "SecLabelStmt": true,
	"ExecuteStmt": true, "PrepareStmt": true, "TransactionStmt": true,
	"LockStmt": true, "ReindexStmt": true, "RefreshMatViewStmt": true,
	"CreateSchemaStmt": true, "DropdbStmt": true, "CreatedbStmt": true,
	"AlterDatabaseStmt": true, "AlterRoleStmt": true, "CreateRoleStmt": true,
	"DropRoleStmt": true, "ClusterStmt": true, "CheckPointStmt": true,
}

// checkAST parses sql, verifying exactly one statement whose root is a
// SELECT (or set-operation over SELECT arms, which libpg_query represents
// as a single nested SelectStmt), and that no write node appears anywhere
// in the tree, including inside CTEs and subqueries.
func checkAST(sql string) (*pgquery.ParseResult, *model.QueryError) {
	tree, err := pgquery.Parse(sql)
	if err != nil {
		return nil, rejection(model.LayerAST, "parse error: %s", err.Error())
	}
	if len(tree.Stmts) != 1 {
		return nil, rejection(model.LayerAST, "expected exactly one statement, found %d", len(tree.Stmts))
	}

	jsonText, err := pgquery.ParseToJSON(sql)
	if err != nil {
		return nil, rejection(model.LayerAST, "parse-to-json error: %s", err.Error())
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, rejection(model.LayerAST, "malformed parse tree json: %s", err.Error())
	}

	stmts, _ := doc["stmts"].([]any)
	if len(stmts) != 1 {
		return nil, rejection(model.LayerAST, "expected exactly one statement, found %d", len(stmts))
	}
	stmtWrapper, _ := stmts[0].(map[string]any)
	rootStmt, _ := stmtWrapper["stmt"].(map[string]any)
	if len(rootStmt) != 1 {
		return nil, rejection(model.LayerAST, "unrecognized statement shape")
	}
	rootType := onlyKey(rootStmt)
	if rootType != "SelectStmt" {
		return nil, rejection(model.LayerAST, "root statement must be SELECT, found %s", rootType)
	}

	if found := walkForbidden(doc); found != "" {
		return nil, rejection(model.LayerAST, "write node %q present in query tree", found)
	}
	return tree, nil
}

func onlyKey(m map[string]any) string {
	for k := range m {
		return k
	}
	return ""
}

func walkForbidden(v any) string {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if forbiddenNodeTypes[k] {
				return k
			}
			if found := walkForbidden(child); found != "" {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := walkForbidden(child); found != "" {
				return found
			}
		}
	}
	return ""
}

// --- Layer 4: dialect transpile -------------------------------------------

// transpile re-emits tree in target's syntax. Deparsing through
// libpg_query is itself a second parser check: a tree that fails to
// deparse is rejected here rather than reaching the executor.
func transpile(tree *pgquery.ParseResult, target model.Dialect) (string, *model.QueryError) {
	canonical, err := pgquery.Deparse(tree)
	if err != nil {
		return "", rejection(model.LayerTranspile, "deparse error: %s", err.Error())
	}
	switch target {
	case model.DialectPostgres:
		return canonical, nil
	case model.DialectOracle:
		return canonicalToOracle(canonical), nil
	default:
		return "", rejection(model.LayerTranspile, "unsupported target dialect %q", target)
	}
}

var limitClausePattern = regexp.MustCompile(`(?is)\s+LIMIT\s+(\d+)(\s+OFFSET\s+(\d+))?\s*$`)
var exceptTokenPattern = regexp.MustCompile(`(?i)\bEXCEPT\b(\s+ALL)?`)

// canonicalToOracle rewrites libpg_query's canonical (Postgres-syntax)
// deparse output into Oracle idioms:
// LIMIT/OFFSET becomes FETCH FIRST/OFFSET, and EXCEPT becomes MINUS
// (Oracle has no EXCEPT keyword). Both rewrites operate on canonicalized
// text, so there is no ambiguity about where the trailing LIMIT clause
// or a literal-aware EXCEPT token sits.
func canonicalToOracle(sql string) string {
	ranges := literalRanges(sql)
	matches := exceptTokenPattern.FindAllStringIndex(sql, -1)
	if len(matches) > 0 {
		var b strings.Builder
		prev := 0
		for _, loc := range matches {
			b.WriteString(sql[prev:loc[0]])
			if insideLiteral(ranges, loc[0]) {
				b.WriteString(sql[loc[0]:loc[1]])
			} else {
				b.WriteString("MINUS")
			}
			prev = loc[1]
		}
		b.WriteString(sql[prev:])
		sql = b.String()
	}

	if m := limitClausePattern.FindStringSubmatch(sql); m != nil {
		n, _ := strconv.Atoi(m[1])
		rest := sql[:len(sql)-len(m[0])]
		if m[3] != "" {
			offset, _ := strconv.Atoi(m[3])
			return fmt.Sprintf("%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", rest, offset, n)
		}
		return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", rest, n)
	}
	return sql
}
