package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/db"
)

// PostgresStore implements Store on a PostgreSQL table. Rows are addressed by
// the table's primary key, which must be a single column. Spatial output
// needs PostGIS.
type PostgresStore struct {
	pool   db.Pool
	table  string
	schema string
	name   string
	keyCol string

	spatialOnce sync.Once
	spatial     bool
}

// OpenPostgres connects to dsn and binds the store to table, which may be
// schema-qualified ("geo.places").
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	s, err := NewPostgres(ctx, pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres binds an existing pool to table and resolves its primary key.
func NewPostgres(ctx context.Context, pool db.Pool, table string) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, table: table, name: table}
	if i := strings.IndexByte(table, '.'); i >= 0 {
		s.schema, s.name = table[:i], table[i+1:]
	}

	cols, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, eris.Wrap(ErrNoTable, table)
	}
	pk, ok := singleKey(cols)
	if !ok {
		return nil, eris.Errorf("postgres: table %s needs a single-column primary key", table)
	}
	s.keyCol = pk
	return s, nil
}

func (s *PostgresStore) ident() string {
	if s.schema != "" {
		return pgx.Identifier{s.schema, s.name}.Sanitize()
	}
	return pgx.Identifier{s.name}.Sanitize()
}

// Table implements Store.
func (s *PostgresStore) Table() string { return s.table }

// Columns implements Store.
func (s *PostgresStore) Columns(ctx context.Context) ([]Column, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.column_name, c.udt_name,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON k.constraint_name = tc.constraint_name
					AND k.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema())
			AND c.table_name = $2
		ORDER BY c.ordinal_position`,
		s.schema, s.name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: columns of %s", s.table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.PrimaryKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan column")
		}
		cols = append(cols, c)
	}
	return cols, eris.Wrap(rows.Err(), "postgres: iterate columns")
}

// HasColumn implements Store.
func (s *PostgresStore) HasColumn(ctx context.Context, name string) (bool, error) {
	cols, err := s.Columns(ctx)
	if err != nil {
		return false, err
	}
	return hasColumn(cols, name), nil
}

// AddColumn implements Store.
func (s *PostgresStore) AddColumn(ctx context.Context, name string, typ ColumnType) error {
	var ddl string
	switch typ {
	case ColumnFloat:
		ddl = "double precision"
	case ColumnText:
		ddl = "text"
	case ColumnPoint:
		ddl = fmt.Sprintf("geometry(Point, %d)", SRID)
	default:
		return eris.Errorf("postgres: column type %s not supported", typ)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		s.ident(), pgx.Identifier{name}.Sanitize(), ddl)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return eris.Wrapf(err, "postgres: add column %s", name)
	}
	return nil
}

// Rows implements Store.
func (s *PostgresStore) Rows(ctx context.Context) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", s.ident(), pgx.Identifier{s.keyCol}.Sanitize())
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select rows")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		row := Row{Columns: names, Values: make(map[string]any, len(names))}
		for i, name := range names {
			row.Values[name] = normalize(vals[i])
			if name == s.keyCol {
				row.Key = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	return out, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, key any, set []Assignment) error {
	if len(set) == 0 {
		return nil
	}

	clauses := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+1)
	for _, a := range set {
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		arg := a.Value
		if g, ok := a.Value.(Geometry); ok {
			b, err := encodeEWKB(g)
			if err != nil {
				return err
			}
			placeholder = fmt.Sprintf("ST_GeomFromEWKB(%s)", placeholder)
			arg = b
		}
		clauses = append(clauses, pgx.Identifier{a.Column}.Sanitize()+" = "+placeholder)
		args = append(args, arg)
	}
	args = append(args, key)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		s.ident(), strings.Join(clauses, ", "), pgx.Identifier{s.keyCol}.Sanitize(), len(args))
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update row %v", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: update row %v: no such row", key)
	}
	return nil
}

// SupportsSpatial implements Store by checking for the PostGIS extension.
func (s *PostgresStore) SupportsSpatial(ctx context.Context) bool {
	s.spatialOnce.Do(func() {
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'postgis')`,
		).Scan(&s.spatial)
		if err != nil {
			zap.L().Warn("postgres: postgis check failed", zap.Error(err))
			s.spatial = false
		}
	})
	return s.spatial
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeEWKB(g Geometry) ([]byte, error) {
	if g.Point == nil {
		return nil, nil
	}
	b, err := ewkb.Marshal(g.Point, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode ewkb")
	}
	return b, nil
}
