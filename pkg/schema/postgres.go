package schema

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// PostgresManager introspects information_schema over a pooled pgx
// connection. Identifiers are preserved as reported: PostgreSQL lower-cases
// unquoted identifiers at DDL time, so system-catalog names are already in
// canonical case and need no further normalization.
type PostgresManager struct {
	pool *pgxpool.Pool
}

// NewPostgresManager wraps an existing pool.
func NewPostgresManager(pool *pgxpool.Pool) *PostgresManager {
	return &PostgresManager{pool: pool}
}

func (m *PostgresManager) Snapshot(ctx context.Context, schemaName string) (model.SchemaSnapshot, error) {
	if schemaName == "" {
		schemaName = "public"
	}

	cols, err := m.fetchColumns(ctx, schemaName)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	pks, err := m.fetchPrimaryKeys(ctx, schemaName)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	fks, err := m.fetchForeignKeys(ctx, schemaName)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	comments, err := m.fetchTableComments(ctx, schemaName)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}

	order := make([]string, 0, 16)
	byTable := map[string]*model.Table{}
	for _, c := range cols {
		t, ok := byTable[c.table]
		if !ok {
			order = append(order, c.table)
			t = &model.Table{Name: c.table, Comment: comments[c.table]}
			byTable[c.table] = t
		}
		pkSet := pks[c.table]
		fkSet := fks[c.table]
		_, isPK := indexOf(pkSet, c.name)
		isFK := false
		for _, fk := range fkSet {
			if fk.Column == c.name {
				isFK = true
				break
			}
		}
		t.Columns = append(t.Columns, model.Column{
			Name:     c.name,
			DataType: normalizePostgresType(c.dataType),
			Nullable: c.nullable,
			IsPK:     isPK,
			IsFK:     isFK,
			Comment:  c.comment,
		})
	}
	for name, t := range byTable {
		t.PrimaryKey = pks[name]
		t.ForeignKeys = fks[name]
	}

	sort.Strings(order)
	tables := make([]model.Table, 0, len(order))
	for _, name := range order {
		tables = append(tables, *byTable[name])
	}
	return model.SchemaSnapshot{Tables: tables}, nil
}

func indexOf(ss []string, v string) (int, bool) {
	for i, s := range ss {
		if s == v {
			return i, true
		}
	}
	return -1, false
}

type rawColumn struct {
	table    string
	name     string
	dataType string
	nullable bool
	comment  string
}

func (m *PostgresManager) fetchColumns(ctx context.Context, schemaName string) ([]rawColumn, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT c.table_name, c.column_name, c.udt_name, c.is_nullable = 'YES',
		       coalesce(pgd.description, '')
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
		  ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
		  ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1
		ORDER BY c.table_name, c.ordinal_position`, schemaName)
	if err != nil {
		return nil, mapPostgresErr("fetch columns", err)
	}
	defer rows.Close()

	var out []rawColumn
	for rows.Next() {
		var rc rawColumn
		if err := rows.Scan(&rc.table, &rc.name, &rc.dataType, &rc.nullable, &rc.comment); err != nil {
			return nil, mapPostgresErr("scan columns", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (m *PostgresManager) fetchPrimaryKeys(ctx context.Context, schemaName string) (map[string][]string, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY tc.table_name, kcu.ordinal_position`, schemaName)
	if err != nil {
		return nil, mapPostgresErr("fetch primary keys", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, mapPostgresErr("scan primary keys", err)
		}
		out[table] = append(out[table], col)
	}
	return out, rows.Err()
}

func (m *PostgresManager) fetchForeignKeys(ctx context.Context, schemaName string) (map[string][]model.ForeignKey, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT tc.table_name, tc.constraint_name, kcu.column_name,
		       ccu.table_name AS ref_table, ccu.column_name AS ref_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.table_constraints tc
		  ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = rc.unique_constraint_name AND ccu.table_schema = rc.unique_constraint_schema
		WHERE tc.table_schema = $1
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`, schemaName)
	if err != nil {
		return nil, mapPostgresErr("fetch foreign keys", err)
	}
	defer rows.Close()

	out := map[string][]model.ForeignKey{}
	counts := map[string]int{} // constraint_name -> column count, to mark composites
	type entry struct {
		table, constraint, column, refTable, refColumn string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.table, &e.constraint, &e.column, &e.refTable, &e.refColumn); err != nil {
			return nil, mapPostgresErr("scan foreign keys", err)
		}
		entries = append(entries, e)
		counts[e.constraint]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		group := ""
		if counts[e.constraint] > 1 {
			group = e.constraint
		}
		out[e.table] = append(out[e.table], model.ForeignKey{
			Column:         e.column,
			RefTable:       e.refTable,
			RefColumn:      e.refColumn,
			CompositeGroup: group,
		})
	}
	return out, nil
}

func (m *PostgresManager) fetchTableComments(ctx context.Context, schemaName string) (map[string]string, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT c.relname, coalesce(obj_description(c.oid), '')
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r','v','m')`, schemaName)
	if err != nil {
		return nil, mapPostgresErr("fetch table comments", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, mapPostgresErr("scan table comments", err)
		}
		out[name] = comment
	}
	return out, rows.Err()
}

func mapPostgresErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501":
			return fatalErr(model.ErrPermissionDenied, op, err)
		case "08000", "08003", "08006":
			return fatalErr(model.ErrConnectionLost, op, err)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fatalErr(model.ErrSyntax, op, err)
	}
	return fatalErr(model.ErrConnectionLost, op, err)
}
