package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// rowidColumn is the alias under which the implicit row id is selected when
// a table has no single-column primary key.
const rowidColumn = "__geocode_rowid"

// sqlDialect captures what differs between the database/sql backed stores.
type sqlDialect interface {
	name() string
	columns(ctx context.Context, db *sql.DB, table string) ([]Column, error)
	columnDDL(typ ColumnType) (string, error)
	geometryExpr(g Geometry) (expr string, arg any, err error)
}

// sqlTable implements the row operations shared by SQLite and DuckDB.
type sqlTable struct {
	db      *sql.DB
	table   string
	dialect sqlDialect

	keyCol string // resolved lazily; "rowid" when there is no single pk
}

func (t *sqlTable) Table() string { return t.table }

func (t *sqlTable) Columns(ctx context.Context) ([]Column, error) {
	cols, err := t.dialect.columns(ctx, t.db, t.table)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: columns of %s", t.dialect.name(), t.table)
	}
	return cols, nil
}

func (t *sqlTable) HasColumn(ctx context.Context, name string) (bool, error) {
	cols, err := t.Columns(ctx)
	if err != nil {
		return false, err
	}
	return hasColumn(cols, name), nil
}

func (t *sqlTable) AddColumn(ctx context.Context, name string, typ ColumnType) error {
	ddl, err := t.dialect.columnDDL(typ)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(t.table), quoteIdent(name), ddl)
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return eris.Wrapf(err, "%s: add column %s", t.dialect.name(), name)
	}
	return nil
}

func (t *sqlTable) keyColumn(ctx context.Context) (string, error) {
	if t.keyCol != "" {
		return t.keyCol, nil
	}
	cols, err := t.Columns(ctx)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", eris.Wrap(ErrNoTable, t.table)
	}
	if pk, ok := singleKey(cols); ok {
		t.keyCol = pk
	} else {
		t.keyCol = "rowid"
	}
	return t.keyCol, nil
}

func (t *sqlTable) Rows(ctx context.Context) ([]Row, error) {
	keyCol, err := t.keyColumn(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quoteIdent(t.table), quoteIdent(keyCol))
	if keyCol == "rowid" {
		query = fmt.Sprintf("SELECT rowid AS %s, * FROM %s ORDER BY rowid", rowidColumn, quoteIdent(t.table))
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: select rows", t.dialect.name())
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrapf(err, "%s: result columns", t.dialect.name())
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "%s: scan row", t.dialect.name())
		}

		row := Row{Values: make(map[string]any, len(names))}
		for i, name := range names {
			if name == rowidColumn {
				row.Key = vals[i]
				continue
			}
			row.Columns = append(row.Columns, name)
			row.Values[name] = normalize(vals[i])
		}
		if keyCol != "rowid" {
			row.Key = vals[indexOf(names, keyCol)]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "%s: iterate rows", t.dialect.name())
	}
	return out, nil
}

func (t *sqlTable) Update(ctx context.Context, key any, set []Assignment) error {
	if len(set) == 0 {
		return nil
	}
	keyCol, err := t.keyColumn(ctx)
	if err != nil {
		return err
	}

	clauses := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+1)
	for _, a := range set {
		expr, arg := "?", a.Value
		if g, ok := a.Value.(Geometry); ok {
			expr, arg, err = t.dialect.geometryExpr(g)
			if err != nil {
				return err
			}
		}
		clauses = append(clauses, quoteIdent(a.Column)+" = "+expr)
		args = append(args, arg)
	}
	args = append(args, key)

	where := quoteIdent(keyCol)
	if keyCol == "rowid" {
		where = "rowid"
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quoteIdent(t.table), strings.Join(clauses, ", "), where)

	res, err := t.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return eris.Wrapf(err, "%s: update row %v", t.dialect.name(), key)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("%s: update row %v: no such row", t.dialect.name(), key)
	}
	return nil
}

func (t *sqlTable) Close() error {
	return t.db.Close()
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
