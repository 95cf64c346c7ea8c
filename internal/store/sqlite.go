package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. The pure-Go driver
// cannot load SpatiaLite, so native spatial columns are unavailable.
type SQLiteStore struct {
	sqlTable
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and binds the store to table.
func NewSQLite(ctx context.Context, dsn, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{sqlTable{db: db, table: table, dialect: sqliteDialect{}}}
	if _, err := s.keyColumn(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// SupportsSpatial implements Store.
func (s *SQLiteStore) SupportsSpatial(context.Context) bool { return false }

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, Type: typ, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

func (sqliteDialect) columnDDL(typ ColumnType) (string, error) {
	switch typ {
	case ColumnFloat:
		return "REAL", nil
	case ColumnText:
		return "TEXT", nil
	default:
		return "", eris.Errorf("sqlite: column type %s not supported", typ)
	}
}

func (sqliteDialect) geometryExpr(Geometry) (string, any, error) {
	return "", nil, eris.New("sqlite: spatial columns not supported")
}
