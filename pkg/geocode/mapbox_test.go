package geocode

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapboxGeocode_Success(t *testing.T) {
	srv, last := newJSONServer(t, http.StatusOK, `{
		"type": "FeatureCollection",
		"features": [{
			"id": "place.123",
			"center": [-71.0596, 42.3605],
			"place_name": "Boston, Massachusetts, United States"
		}]
	}`)

	p := NewMapboxProvider("pk.test",
		WithBaseURL(srv.URL),
		WithBounds(Bounds{South: 42.163302, West: -71.553765, North: 42.533755, East: -70.564995}),
		WithProximity(Point{Latitude: 42.3, Longitude: -71.0}),
	)
	result, err := p.Geocode(context.Background(), "Boston, MA")
	require.NoError(t, err)
	assert.InDelta(t, 42.3605, result.Latitude, 1e-6)
	assert.InDelta(t, -71.0596, result.Longitude, 1e-6)
	assert.Equal(t, "Boston, Massachusetts, United States", result.Address)

	assert.Equal(t, "/geocoding/v5/mapbox.places/Boston, MA.json", last.URL.Path)
	q := last.URL.Query()
	assert.Equal(t, "pk.test", q.Get("access_token"))
	assert.Equal(t, "-71.553765,42.163302,-70.564995,42.533755", q.Get("bbox"))
	assert.Equal(t, "-71,42.3", q.Get("proximity"))
}

func TestMapboxGeocode_NoFeatures(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusOK, `{"type": "FeatureCollection", "features": []}`)

	p := NewMapboxProvider("pk.test", WithBaseURL(srv.URL))
	_, err := p.Geocode(context.Background(), "zzzz")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestMapboxGeocode_Unauthorized(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusUnauthorized, `{"message": "Not Authorized - Invalid Token"}`)

	p := NewMapboxProvider("bad", WithBaseURL(srv.URL))
	_, err := p.Geocode(context.Background(), "Boston")
	assert.True(t, IsKind(err, KindAuth))
}

func TestMapboxGeocode_Validation(t *testing.T) {
	_, err := NewMapboxProvider("").Geocode(context.Background(), "Boston")
	assert.True(t, IsKind(err, KindAuth))

	_, err = NewMapboxProvider("pk.test").Geocode(context.Background(), "")
	assert.True(t, IsKind(err, KindInvalidQuery))
}
