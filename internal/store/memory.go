package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryStore is a schemaless in-memory Store. Its column set is the union
// of the keys of its rows plus any added columns, so individual rows may lack
// columns the table as a whole has. Keys are row indexes.
type MemoryStore struct {
	mu      sync.Mutex
	table   string
	columns []string
	rows    []map[string]any
	spatial bool
}

// NewMemory creates a MemoryStore holding copies of rows, in order.
func NewMemory(table string, rows []map[string]any) *MemoryStore {
	s := &MemoryStore{table: table}
	for _, r := range rows {
		cp := make(map[string]any, len(r))
		for _, k := range slices.Sorted(maps.Keys(r)) {
			cp[k] = r[k]
			s.addName(k)
		}
		s.rows = append(s.rows, cp)
	}
	return s
}

// WithSpatial makes the store accept ColumnPoint columns and Geometry values.
func (s *MemoryStore) WithSpatial(ok bool) *MemoryStore {
	s.spatial = ok
	return s
}

func (s *MemoryStore) addName(name string) {
	for _, c := range s.columns {
		if c == name {
			return
		}
	}
	s.columns = append(s.columns, name)
}

// Table implements Store.
func (s *MemoryStore) Table() string { return s.table }

// Columns implements Store.
func (s *MemoryStore) Columns(context.Context) ([]Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := make([]Column, len(s.columns))
	for i, c := range s.columns {
		cols[i] = Column{Name: c}
	}
	return cols, nil
}

// HasColumn implements Store.
func (s *MemoryStore) HasColumn(ctx context.Context, name string) (bool, error) {
	cols, _ := s.Columns(ctx)
	return hasColumn(cols, name), nil
}

// AddColumn implements Store.
func (s *MemoryStore) AddColumn(_ context.Context, name string, typ ColumnType) error {
	if typ == ColumnPoint && !s.spatial {
		return eris.New("memory: spatial columns not supported")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addName(name)
	return nil
}

// Rows implements Store.
func (s *MemoryStore) Rows(context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		row := Row{Key: i, Values: make(map[string]any, len(r))}
		for _, c := range s.columns {
			if v, ok := r[c]; ok {
				row.Columns = append(row.Columns, c)
				row.Values[c] = v
			}
		}
		out[i] = row
	}
	return out, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, key any, set []Assignment) error {
	i, ok := key.(int)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok || i < 0 || i >= len(s.rows) {
		return eris.Errorf("memory: update row %v: no such row", key)
	}
	for _, a := range set {
		if _, isGeom := a.Value.(Geometry); isGeom && !s.spatial {
			return eris.Errorf("memory: column %s: spatial values not supported", a.Column)
		}
	}
	for _, a := range set {
		s.rows[i][a.Column] = a.Value
		s.addName(a.Column)
	}
	return nil
}

// Snapshot returns a copy of row i as currently stored.
func (s *MemoryStore) Snapshot(i int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(s.rows[i]))
	for k, v := range s.rows[i] {
		cp[k] = v
	}
	return cp
}

// SupportsSpatial implements Store.
func (s *MemoryStore) SupportsSpatial(context.Context) bool { return s.spatial }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
