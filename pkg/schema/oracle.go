package schema

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// OracleManager introspects the ALL_TABLES family of data dictionary views
// over a database/sql connection opened with sijms/go-ora. Unquoted
// identifiers are stored uppercase by Oracle's dictionary, so this manager
// uppercases the configured owner before filtering and reports names
// exactly as the dictionary holds them — callers that compare against
// user-typed lowercase names must uppercase first.
type OracleManager struct {
	db *sql.DB
}

// NewOracleManager wraps an existing *sql.DB.
func NewOracleManager(db *sql.DB) *OracleManager {
	return &OracleManager{db: db}
}

func (m *OracleManager) Snapshot(ctx context.Context, owner string) (model.SchemaSnapshot, error) {
	owner = strings.ToUpper(owner)

	cols, err := m.fetchColumns(ctx, owner)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	pks, err := m.fetchPrimaryKeys(ctx, owner)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	fks, err := m.fetchForeignKeys(ctx, owner)
	if err != nil {
		return model.SchemaSnapshot{}, err
	}
	comments, err := m.fetchTableComments(ctx, owner)
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
		_, isPK := indexOf(pks[c.table], c.name)
		isFK := false
		for _, fk := range fks[c.table] {
			if fk.Column == c.name {
				isFK = true
				break
			}
		}
		t.Columns = append(t.Columns, model.Column{
			Name:     c.name,
			DataType: normalizeOracleType(c.dataType),
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

func (m *OracleManager) fetchColumns(ctx context.Context, owner string) ([]rawColumn, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE,
		       CASE WHEN c.NULLABLE = 'Y' THEN 1 ELSE 0 END,
		       NVL(cc.COMMENTS, ' ')
		FROM ALL_TAB_COLUMNS c
		LEFT JOIN ALL_COL_COMMENTS cc
		  ON cc.OWNER = c.OWNER AND cc.TABLE_NAME = c.TABLE_NAME AND cc.COLUMN_NAME = c.COLUMN_NAME
		WHERE c.OWNER = :1
		ORDER BY c.TABLE_NAME, c.COLUMN_ID`, owner)
	if err != nil {
		return nil, fatalErr(model.ErrConnectionLost, "fetch columns", err)
	}
	defer rows.Close()

	var out []rawColumn
	for rows.Next() {
		var rc rawColumn
		var nullable int
		if err := rows.Scan(&rc.table, &rc.name, &rc.dataType, &nullable, &rc.comment); err != nil {
			return nil, fatalErr(model.ErrConnectionLost, "scan columns", err)
		}
		rc.nullable = nullable == 1
		rc.comment = strings.TrimSpace(rc.comment)
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (m *OracleManager) fetchPrimaryKeys(ctx context.Context, owner string) (map[string][]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT cons.TABLE_NAME, cols.COLUMN_NAME
		FROM ALL_CONSTRAINTS cons
		JOIN ALL_CONS_COLUMNS cols
		  ON cols.OWNER = cons.OWNER AND cols.CONSTRAINT_NAME = cons.CONSTRAINT_NAME
		WHERE cons.OWNER = :1 AND cons.CONSTRAINT_TYPE = 'P'
		ORDER BY cons.TABLE_NAME, cols.POSITION`, owner)
	if err != nil {
		return nil, fatalErr(model.ErrConnectionLost, "fetch primary keys", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, fatalErr(model.ErrConnectionLost, "scan primary keys", err)
		}
		out[table] = append(out[table], col)
	}
	return out, rows.Err()
}

func (m *OracleManager) fetchForeignKeys(ctx context.Context, owner string) (map[string][]model.ForeignKey, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT fk.TABLE_NAME, fk.CONSTRAINT_NAME, fkc.COLUMN_NAME,
		       pk.TABLE_NAME, pkc.COLUMN_NAME
		FROM ALL_CONSTRAINTS fk
		JOIN ALL_CONS_COLUMNS fkc
		  ON fkc.OWNER = fk.OWNER AND fkc.CONSTRAINT_NAME = fk.CONSTRAINT_NAME
		JOIN ALL_CONSTRAINTS pk
		  ON pk.OWNER = fk.R_OWNER AND pk.CONSTRAINT_NAME = fk.R_CONSTRAINT_NAME
		JOIN ALL_CONS_COLUMNS pkc
		  ON pkc.OWNER = pk.OWNER AND pkc.CONSTRAINT_NAME = pk.CONSTRAINT_NAME AND pkc.POSITION = fkc.POSITION
		WHERE fk.OWNER = :1 AND fk.CONSTRAINT_TYPE = 'R'
		ORDER BY fk.TABLE_NAME, fk.CONSTRAINT_NAME, fkc.POSITION`, owner)
	if err != nil {
		return nil, fatalErr(model.ErrConnectionLost, "fetch foreign keys", err)
	}
	defer rows.Close()

	type entry struct {
		table, constraint, column, refTable, refColumn string
	}
	var entries []entry
	counts := map[string]int{}
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.table, &e.constraint, &e.column, &e.refTable, &e.refColumn); err != nil {
			return nil, fatalErr(model.ErrConnectionLost, "scan foreign keys", err)
		}
		entries = append(entries, e)
		counts[e.constraint]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := map[string][]model.ForeignKey{}
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

func (m *OracleManager) fetchTableComments(ctx context.Context, owner string) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT TABLE_NAME, NVL(COMMENTS, ' ')
		FROM ALL_TAB_COMMENTS
		WHERE OWNER = :1`, owner)
	if err != nil {
		return nil, fatalErr(model.ErrConnectionLost, "fetch table comments", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, fatalErr(model.ErrConnectionLost, "scan table comments", err)
		}
		out[name] = strings.TrimSpace(comment)
	}
	return out, rows.Err()
}
