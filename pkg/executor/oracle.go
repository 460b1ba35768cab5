package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// OracleExecutor runs SQL over a database/sql connection opened with
// sijms/go-ora. One request occupies at most one connection, borrowed from
// the pool for the lifetime of the query.
type OracleExecutor struct {
	db *sql.DB
}

// NewOracleExecutor wraps an existing *sql.DB.
func NewOracleExecutor(db *sql.DB) *OracleExecutor {
	return &OracleExecutor{db: db}
}

func (e *OracleExecutor) Execute(ctx context.Context, sql string, opts Options) (model.QueryResult, *model.QueryError) {
	opts = opts.withDefaults()
	ctx, cancel := applyTimeout(ctx, opts)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sql)
	if err != nil {
		return model.QueryResult{}, mapOracleExecErr(ctx, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return model.QueryResult{}, mapOracleExecErr(ctx, err)
	}
	cols := make([]model.ColumnDescriptor, len(colNames))
	for i, n := range colNames {
		cols[i] = model.ColumnDescriptor{Name: n}
	}

	var result model.QueryResult
	result.Rows = make([]model.Row, 0, opts.RowLimit)
	typeSeen := make([]model.SemanticType, len(colNames))

	count := 0
	truncated := false
	for rows.Next() {
		if count >= opts.RowLimit {
			truncated = true
			break
		}
		values := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return model.QueryResult{}, mapOracleExecErr(ctx, err)
		}
		row := make(model.Row, len(values))
		for i, v := range values {
			if typeSeen[i] == "" && v != nil {
				typeSeen[i] = inferSemanticType(v)
			}
			row[colNames[i]] = v
		}
		result.Rows = append(result.Rows, row)
		count++
	}
	if err := rows.Err(); err != nil {
		return model.QueryResult{}, mapOracleExecErr(ctx, err)
	}

	for i := range cols {
		if typeSeen[i] == "" {
			typeSeen[i] = model.TypeText
		}
		cols[i].DataType = typeSeen[i]
	}
	result.Columns = cols
	result.Truncated = truncated
	result.RowCount = count
	result.Elapsed = time.Since(start)
	return result, nil
}

// oracleErrorCodes maps the ORA-NNNNN prefix embedded in go-ora's error
// messages onto QueryErrorKind, since the driver surfaces errors as plain
// strings rather than a typed error hierarchy.
var oracleErrorCodes = map[string]model.QueryErrorKind{
	"ORA-00904": model.ErrUnknownIdentifier, // invalid identifier
	"ORA-00942": model.ErrUnknownIdentifier, // table or view does not exist
	"ORA-00936": model.ErrSyntax,            // missing expression
	"ORA-00933": model.ErrSyntax,            // SQL command not properly ended
	"ORA-00921": model.ErrSyntax,            // unexpected end of SQL command
	"ORA-01722": model.ErrTypeMismatch,      // invalid number
	"ORA-01858": model.ErrTypeMismatch,      // non-numeric character in date/number field
	"ORA-01031": model.ErrPermissionDenied,  // insufficient privileges
	"ORA-03113": model.ErrConnectionLost,    // end-of-file on communication channel
	"ORA-03114": model.ErrConnectionLost,    // not connected to ORACLE
	"ORA-12541": model.ErrConnectionLost,    // TNS:no listener
	"ORA-12170": model.ErrConnectionLost,    // TNS:connect timeout
	"ORA-01013": model.ErrTimeout,           // user requested cancel of current operation
}

func mapOracleExecErr(ctx context.Context, err error) *model.QueryError {
	if ctx.Err() == context.DeadlineExceeded {
		return &model.QueryError{Kind: model.ErrTimeout, Message: "statement timeout exceeded"}
	}
	msg := err.Error()
	for code, kind := range oracleErrorCodes {
		if strings.Contains(msg, code) {
			return &model.QueryError{Kind: kind, Message: msg}
		}
	}
	if strings.Contains(msg, "ORA-") {
		return &model.QueryError{Kind: model.ErrSyntax, Message: msg}
	}
	return &model.QueryError{Kind: model.ErrConnectionLost, Message: msg}
}
