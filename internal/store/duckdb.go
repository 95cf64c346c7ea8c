package store

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
)

// DuckDBStore implements Store on a DuckDB database. Spatial output needs
// the spatial extension to be installed.
type DuckDBStore struct {
	sqlTable

	spatialOnce sync.Once
	spatial     bool
}

// NewDuckDB opens the DuckDB database at dsn ("" for in-memory) and binds
// the store to table.
func NewDuckDB(ctx context.Context, dsn, table string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "duckdb: open")
	}
	// Extensions and in-memory data live on the connection.
	db.SetMaxOpenConns(1)

	s := &DuckDBStore{sqlTable: sqlTable{db: db, table: table, dialect: duckdbDialect{}}}
	if _, err := s.keyColumn(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// NewDuckDBFromDB binds an already open DuckDB handle to table.
func NewDuckDBFromDB(ctx context.Context, db *sql.DB, table string) (*DuckDBStore, error) {
	s := &DuckDBStore{sqlTable: sqlTable{db: db, table: table, dialect: duckdbDialect{}}}
	if _, err := s.keyColumn(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SupportsSpatial implements Store. The extension is loaded on first use.
func (s *DuckDBStore) SupportsSpatial(ctx context.Context) bool {
	s.spatialOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, "LOAD spatial"); err != nil {
			zap.L().Debug("duckdb: spatial extension unavailable", zap.Error(err))
			return
		}
		s.spatial = true
	})
	return s.spatial
}

type duckdbDialect struct{}

func (duckdbDialect) name() string { return "duckdb" }

func (duckdbDialect) columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	pks := make(map[string]bool)
	pkRows, err := db.QueryContext(ctx, `
		SELECT unnest(constraint_column_names)
		FROM duckdb_constraints()
		WHERE database_name = current_database() AND schema_name = current_schema()
			AND table_name = ? AND constraint_type = 'PRIMARY KEY'`, table)
	if err != nil {
		return nil, err
	}
	for pkRows.Next() {
		var name string
		if err := pkRows.Scan(&name); err != nil {
			pkRows.Close() //nolint:errcheck
			return nil, err
		}
		pks[name] = true
	}
	if err := pkRows.Close(); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_catalog = current_database() AND table_schema = current_schema()
			AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		c.PrimaryKey = pks[c.Name]
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (duckdbDialect) columnDDL(typ ColumnType) (string, error) {
	switch typ {
	case ColumnFloat:
		return "DOUBLE", nil
	case ColumnText:
		return "VARCHAR", nil
	case ColumnPoint:
		return "GEOMETRY", nil
	default:
		return "", eris.Errorf("duckdb: column type %s not supported", typ)
	}
}

func (duckdbDialect) geometryExpr(g Geometry) (string, any, error) {
	if g.Point == nil {
		return "?", nil, nil
	}
	b, err := wkb.Marshal(g.Point, wkb.NDR)
	if err != nil {
		return "", nil, eris.Wrap(err, "duckdb: encode wkb")
	}
	return "ST_GeomFromWKB(?)", b, nil
}
