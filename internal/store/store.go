// Package store is the tabular boundary of the geocoder: it enumerates the
// rows of one table and applies per-row column updates.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the coordinate reference system of every geometry the stores write
// (WGS 84).
const SRID = 4326

// ColumnType is the logical type of a column the geocoder adds.
type ColumnType int

const (
	// ColumnFloat holds a double precision number.
	ColumnFloat ColumnType = iota + 1
	// ColumnText holds free text (GeoJSON, raw JSON, provider names).
	ColumnText
	// ColumnPoint is a native spatial point column in SRID 4326.
	ColumnPoint
)

func (t ColumnType) String() string {
	switch t {
	case ColumnFloat:
		return "float"
	case ColumnText:
		return "text"
	case ColumnPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Column describes one column of the table.
type Column struct {
	Name       string
	Type       string // declared database type, as reported by the engine
	PrimaryKey bool
}

// Row is one record together with the identity used to update it.
type Row struct {
	Key     any
	Columns []string
	Values  map[string]any
}

// Get returns the value of a column and whether the row carries it at all.
func (r Row) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Assignment sets one column to a value. Value is a float64, a string or a
// Geometry.
type Assignment struct {
	Column string
	Value  any
}

// Geometry is a value for a ColumnPoint column.
type Geometry struct {
	Point *geom.Point
}

// NewPointGeometry builds a Geometry for a WGS 84 coordinate.
func NewPointGeometry(lat, lon float64) Geometry {
	pt := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	return Geometry{Point: pt}
}

// Store reads and updates the rows of a single table. Every Update is an
// independent, immediately committed statement.
type Store interface {
	Table() string
	Columns(ctx context.Context) ([]Column, error)
	HasColumn(ctx context.Context, name string) (bool, error)
	AddColumn(ctx context.Context, name string, typ ColumnType) error
	// Rows returns every row in natural order: primary key if the table has
	// one, otherwise insertion order.
	Rows(ctx context.Context) ([]Row, error)
	Update(ctx context.Context, key any, set []Assignment) error
	SupportsSpatial(ctx context.Context) bool
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Open connects to dsn with the named driver and binds the result to table.
func Open(ctx context.Context, driver, dsn, table string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		return NewSQLite(ctx, dsn, table)
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, dsn, table)
	case DriverDuckDB:
		return NewDuckDB(ctx, dsn, table)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// ErrNoTable is returned when the bound table does not exist.
var ErrNoTable = eris.New("store: table not found")

func hasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// singleKey returns the name of the primary key column when the key is a
// single column.
func singleKey(cols []Column) (string, bool) {
	var name string
	n := 0
	for _, c := range cols {
		if c.PrimaryKey {
			name = c.Name
			n++
		}
	}
	return name, n == 1
}

// quoteIdent double-quotes an identifier for SQLite and DuckDB.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// normalize converts driver values into the plain scalars templates expect.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
