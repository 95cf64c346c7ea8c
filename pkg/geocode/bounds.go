package geocode

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Point is a latitude/longitude pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Bounds is a bounding box given by two opposite corners.
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

// ParseBounds parses four numbers "lat1 lon1 lat2 lon2" (spaces or commas)
// into a Bounds, normalising the corner order.
func ParseBounds(s string) (Bounds, error) {
	vals, err := parseFloats(s, 4)
	if err != nil {
		return Bounds{}, eris.Wrap(err, "geocode: parse bounds")
	}
	b := Bounds{
		South: min(vals[0], vals[2]),
		North: max(vals[0], vals[2]),
		West:  min(vals[1], vals[3]),
		East:  max(vals[1], vals[3]),
	}
	if b.South < -90 || b.North > 90 || b.West < -180 || b.East > 180 {
		return Bounds{}, eris.Errorf("geocode: bounds %q out of range", s)
	}
	return b, nil
}

// ParsePoint parses "lat lon" (space or comma separated).
func ParsePoint(s string) (Point, error) {
	vals, err := parseFloats(s, 2)
	if err != nil {
		return Point{}, eris.Wrap(err, "geocode: parse point")
	}
	p := Point{Latitude: vals[0], Longitude: vals[1]}
	if err := (&Result{Latitude: p.Latitude, Longitude: p.Longitude}).Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != n {
		return nil, eris.Errorf("expected %d numbers, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid number %q", f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("invalid number %q: must be finite", f)
		}
		out[i] = v
	}
	return out, nil
}
