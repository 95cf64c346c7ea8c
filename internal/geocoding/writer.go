package geocoding

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

// OutputMode selects how a result is stored on a row.
type OutputMode string

const (
	// ModeCoordinates writes latitude and longitude to two float columns.
	ModeCoordinates OutputMode = "coordinates"
	// ModeGeoJSON writes a GeoJSON Point to one text column.
	ModeGeoJSON OutputMode = "geojson"
	// ModeSpatial writes a native SRID 4326 point to one geometry column.
	ModeSpatial OutputMode = "spatial"
)

// ParseOutputMode parses a mode name.
func ParseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeCoordinates, nil
	case ModeCoordinates, ModeGeoJSON, ModeSpatial:
		return m, nil
	default:
		return "", eris.Errorf("geocoding: unknown output mode %q", s)
	}
}

// WriterConfig names the target columns.
type WriterConfig struct {
	Mode            OutputMode
	LatitudeColumn  string
	LongitudeColumn string
	GeometryColumn  string
	CaptureRaw      bool
	RawColumn       string
	ProviderColumn  string // empty disables recording the provider name
}

// Writer persists geocode results into a row's target columns.
type Writer struct {
	cfg WriterConfig
}

// NewWriter fills in default column names and validates the mode.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	mode, err := ParseOutputMode(string(cfg.Mode))
	if err != nil {
		return nil, &ConfigError{Msg: "output mode", Err: err}
	}
	cfg.Mode = mode
	if cfg.LatitudeColumn == "" {
		cfg.LatitudeColumn = "latitude"
	}
	if cfg.LongitudeColumn == "" {
		cfg.LongitudeColumn = "longitude"
	}
	if cfg.GeometryColumn == "" {
		cfg.GeometryColumn = "geometry"
	}
	if cfg.RawColumn == "" {
		cfg.RawColumn = "raw"
	}
	return &Writer{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (w *Writer) Config() WriterConfig { return w.cfg }

type target struct {
	name string
	typ  store.ColumnType
}

// targets lists every column the writer may set, in write order.
func (w *Writer) targets() []target {
	var ts []target
	switch w.cfg.Mode {
	case ModeGeoJSON:
		ts = append(ts, target{w.cfg.GeometryColumn, store.ColumnText})
	case ModeSpatial:
		ts = append(ts, target{w.cfg.GeometryColumn, store.ColumnPoint})
	default:
		ts = append(ts,
			target{w.cfg.LatitudeColumn, store.ColumnFloat},
			target{w.cfg.LongitudeColumn, store.ColumnFloat},
		)
	}
	if w.cfg.CaptureRaw {
		ts = append(ts, target{w.cfg.RawColumn, store.ColumnText})
	}
	if w.cfg.ProviderColumn != "" {
		ts = append(ts, target{w.cfg.ProviderColumn, store.ColumnText})
	}
	return ts
}

// Prepare checks the store can hold the output and adds missing target
// columns. Spatial output on a store without spatial support is a
// *ConfigError.
func (w *Writer) Prepare(ctx context.Context, st store.Store) error {
	if w.cfg.Mode == ModeSpatial && !st.SupportsSpatial(ctx) {
		return &ConfigError{Msg: "spatial output requires a store with spatial column support (" + st.Table() + ")"}
	}

	cols, err := st.Columns(ctx)
	if err != nil {
		return eris.Wrap(err, "geocoding: read columns")
	}
	existing := make(map[string]bool, len(cols))
	for _, c := range cols {
		existing[c.Name] = true
	}

	for _, t := range w.targets() {
		if existing[t.name] {
			continue
		}
		if err := st.AddColumn(ctx, t.name, t.typ); err != nil {
			return &ConfigError{Msg: "add column " + t.name, Err: err}
		}
		existing[t.name] = true
	}
	return nil
}

// Assignments converts a result into column assignments for the configured
// mode.
func (w *Writer) Assignments(res *geocode.Result, provider string) ([]store.Assignment, error) {
	if res == nil {
		return nil, eris.New("geocoding: nil result")
	}

	var set []store.Assignment
	switch w.cfg.Mode {
	case ModeGeoJSON:
		pt := geom.NewPointFlat(geom.XY, []float64{res.Longitude, res.Latitude})
		b, err := geojson.Marshal(pt)
		if err != nil {
			return nil, eris.Wrap(err, "geocoding: encode geojson")
		}
		set = append(set, store.Assignment{Column: w.cfg.GeometryColumn, Value: string(b)})
	case ModeSpatial:
		set = append(set, store.Assignment{
			Column: w.cfg.GeometryColumn,
			Value:  store.NewPointGeometry(res.Latitude, res.Longitude),
		})
	default:
		set = append(set,
			store.Assignment{Column: w.cfg.LatitudeColumn, Value: res.Latitude},
			store.Assignment{Column: w.cfg.LongitudeColumn, Value: res.Longitude},
		)
	}

	if w.cfg.CaptureRaw {
		raw, err := rawText(res)
		if err != nil {
			return nil, err
		}
		set = append(set, store.Assignment{Column: w.cfg.RawColumn, Value: raw})
	}
	if w.cfg.ProviderColumn != "" {
		set = append(set, store.Assignment{Column: w.cfg.ProviderColumn, Value: provider})
	}
	return set, nil
}

// Write stores res on the row identified by key.
func (w *Writer) Write(ctx context.Context, st store.Store, key any, res *geocode.Result, provider string) error {
	set, err := w.Assignments(res, provider)
	if err != nil {
		return err
	}
	if err := st.Update(ctx, key, set); err != nil {
		return eris.Wrapf(err, "geocoding: write row %v", key)
	}
	return nil
}

// Populated reports whether the row already carries output for the
// configured mode.
func (w *Writer) Populated(row store.Row) bool {
	notNull := func(col string) bool {
		v, ok := row.Get(col)
		return ok && v != nil
	}
	if w.cfg.Mode == ModeCoordinates {
		return notNull(w.cfg.LatitudeColumn) && notNull(w.cfg.LongitudeColumn)
	}
	return notNull(w.cfg.GeometryColumn)
}

// rawText serializes the provider payload, falling back to the result
// itself when the provider returned none.
func rawText(res *geocode.Result) (string, error) {
	if len(res.Raw) > 0 {
		return string(res.Raw), nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", eris.Wrap(err, "geocoding: encode raw")
	}
	return string(b), nil
}
