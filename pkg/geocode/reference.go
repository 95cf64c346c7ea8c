package geocode

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReferenceProvider is a deterministic, offline provider backed by a fixed
// dataset. A query matches only if it equals a dataset key verbatim; every
// other query is NotFound. It exists so table geocoding can be exercised
// without network access.
type ReferenceProvider struct {
	entries map[string]Result
}

// NewReferenceProvider creates a ReferenceProvider over entries keyed by query.
func NewReferenceProvider(entries map[string]Result) *ReferenceProvider {
	cp := make(map[string]Result, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &ReferenceProvider{entries: cp}
}

// Name implements Provider.
func (p *ReferenceProvider) Name() string { return "test" }

// Len returns the number of known queries.
func (p *ReferenceProvider) Len() int { return len(p.entries) }

// Geocode implements Provider.
func (p *ReferenceProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, err)
	}
	entry, ok := p.entries[query]
	if !ok {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}
	res := entry
	return &res, nil
}

// referenceFeature is decoded by hand so that numeric and string feature ids
// are both accepted.
type referenceFeature struct {
	ID         json.RawMessage `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type referenceCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// LoadReferenceGeoJSON builds a ReferenceProvider from a GeoJSON
// FeatureCollection of points. Features are keyed by the keyProperty
// property, or by the feature id when keyProperty is empty. Each feature is
// kept verbatim as the raw payload.
func LoadReferenceGeoJSON(r io.Reader, keyProperty string) (*ReferenceProvider, error) {
	var fc referenceCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "reference: decode feature collection")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("reference: expected FeatureCollection, got %q", fc.Type)
	}

	entries := make(map[string]Result, len(fc.Features))
	for i, rawFeature := range fc.Features {
		var f referenceFeature
		if err := json.Unmarshal(rawFeature, &f); err != nil {
			return nil, eris.Wrapf(err, "reference: decode feature %d", i)
		}

		var key string
		if keyProperty == "" {
			key = strings.Trim(string(f.ID), `"`)
		} else {
			v, ok := f.Properties[keyProperty]
			if !ok {
				return nil, eris.Errorf("reference: feature %d has no %q property", i, keyProperty)
			}
			s, err := cast.ToStringE(v)
			if err != nil {
				return nil, eris.Wrapf(err, "reference: feature %d key", i)
			}
			key = s
		}
		if key == "" {
			return nil, eris.Errorf("reference: feature %d has no key", i)
		}

		lat, lon, err := pointFromGeoJSON(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "reference: feature %q", key)
		}
		entries[key] = Result{
			Latitude:  lat,
			Longitude: lon,
			Address:   addressProperty(f.Properties),
			Raw:       rawFeature,
		}
	}
	return &ReferenceProvider{entries: entries}, nil
}

// ReferenceFromRows builds a ReferenceProvider from table rows whose
// geometryColumn holds a GeoJSON point. The whole row becomes the raw payload.
func ReferenceFromRows(rows []map[string]any, keyColumn, geometryColumn string) (*ReferenceProvider, error) {
	entries := make(map[string]Result, len(rows))
	for i, row := range rows {
		plain := make(map[string]any, len(row))
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			plain[k] = v
		}

		key, err := cast.ToStringE(plain[keyColumn])
		if err != nil || key == "" {
			return nil, eris.Errorf("reference: row %d has no usable %q value", i, keyColumn)
		}
		geomText, err := cast.ToStringE(plain[geometryColumn])
		if err != nil || geomText == "" {
			return nil, eris.Errorf("reference: row %q has no %q value", key, geometryColumn)
		}

		lat, lon, err := pointFromGeoJSON([]byte(geomText))
		if err != nil {
			return nil, eris.Wrapf(err, "reference: row %q", key)
		}
		raw, err := json.Marshal(plain)
		if err != nil {
			return nil, eris.Wrapf(err, "reference: marshal row %q", key)
		}
		entries[key] = Result{
			Latitude:  lat,
			Longitude: lon,
			Address:   addressProperty(plain),
			Raw:       raw,
		}
	}
	return &ReferenceProvider{entries: entries}, nil
}

func pointFromGeoJSON(data []byte) (lat, lon float64, err error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return 0, 0, eris.Wrap(err, "decode geometry")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("geometry is %T, want point", g)
	}
	return pt.Y(), pt.X(), nil
}

// addressProperty picks a human-readable address out of a property bag.
func addressProperty(props map[string]any) string {
	for _, k := range []string{"addr:full", "address", "name"} {
		if v, ok := props[k]; ok {
			if s, err := cast.ToStringE(v); err == nil && s != "" {
				return s
			}
		}
	}
	return ""
}
