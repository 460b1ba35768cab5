// Package schema introspects a live database's catalogs into a
// model.SchemaSnapshot. Two backends are provided (postgres, oracle)
// behind a shared Manager interface.
package schema

import (
	"context"
	"fmt"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// Manager introspects a live connection into a SchemaSnapshot.
type Manager interface {
	// Snapshot reads the current schema named by schemaName (the owner on
	// Oracle). An empty name reads "public" on PostgreSQL; the Oracle
	// manager applies no default.
	Snapshot(ctx context.Context, schemaName string) (model.SchemaSnapshot, error)
}

// asQueryError wraps a lower-level driver error as the fatal QueryError
// introspection failures surface as.
func asQueryError(kind model.QueryErrorKind, err error) *model.QueryError {
	return &model.QueryError{Kind: kind, Message: err.Error()}
}

// normalizeType maps a database-reported type name onto the semantic type
// set shared across dialects.
func normalizeType(dialect model.Dialect, raw string) model.SemanticType {
	switch dialect {
	case model.DialectPostgres:
		return normalizePostgresType(raw)
	case model.DialectOracle:
		return normalizeOracleType(raw)
	default:
		return model.TypeText
	}
}

func normalizePostgresType(raw string) model.SemanticType {
	switch raw {
	case "integer", "bigint", "smallint", "int", "int2", "int4", "int8", "serial", "bigserial":
		return model.TypeInteger
	case "numeric", "decimal", "real", "double precision", "float4", "float8", "money":
		return model.TypeDecimal
	case "boolean", "bool":
		return model.TypeBoolean
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone",
		"date", "time", "timetz", "time without time zone", "time with time zone":
		return model.TypeTimestamp
	case "json", "jsonb":
		return model.TypeJSON
	case "bytea":
		return model.TypeBinary
	default:
		return model.TypeText
	}
}

func normalizeOracleType(raw string) model.SemanticType {
	switch raw {
	case "NUMBER", "INTEGER", "INT", "SMALLINT":
		return model.TypeInteger
	case "FLOAT", "BINARY_FLOAT", "BINARY_DOUBLE":
		return model.TypeDecimal
	case "DATE", "TIMESTAMP", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITH LOCAL TIME ZONE":
		return model.TypeTimestamp
	case "CLOB", "NCLOB", "VARCHAR2", "NVARCHAR2", "CHAR", "NCHAR", "LONG":
		return model.TypeText
	case "BLOB", "RAW", "LONG RAW", "BFILE":
		return model.TypeBinary
	default:
		return model.TypeText
	}
}

func fatalErr(kind model.QueryErrorKind, op string, err error) error {
	return fmt.Errorf("schema: %s: %w", op, asQueryError(kind, err))
}
