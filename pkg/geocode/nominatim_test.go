package geocode

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocode_Success(t *testing.T) {
	srv, last := newJSONServer(t, http.StatusOK, `[{
		"place_id": 1,
		"lat": "34.0536909",
		"lon": "-118.242766",
		"display_name": "Los Angeles, Los Angeles County, California, United States"
	}]`)

	p := NewNominatimProvider(WithBaseURL(srv.URL), WithUserAgent("geocode-cli-test"), WithRateLimit(0))
	result, err := p.Geocode(context.Background(), "Los Angeles, CA")
	require.NoError(t, err)
	assert.InDelta(t, 34.0536909, result.Latitude, 1e-7)
	assert.InDelta(t, -118.242766, result.Longitude, 1e-7)
	assert.Contains(t, result.Address, "Los Angeles County")
	assert.Contains(t, string(result.Raw), "place_id")

	assert.Equal(t, "/search", last.URL.Path)
	assert.Equal(t, "Los Angeles, CA", last.URL.Query().Get("q"))
	assert.Equal(t, "jsonv2", last.URL.Query().Get("format"))
	assert.Equal(t, "geocode-cli-test", last.Header.Get("User-Agent"))
}

func TestNominatimGeocode_Empty(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusOK, `[]`)

	p := NewNominatimProvider(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := p.Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestNominatimGeocode_BadCoordinates(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusOK, `[{"lat": "134.0", "lon": "-118.2"}]`)

	p := NewNominatimProvider(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := p.Geocode(context.Background(), "Nowhere")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Contains(t, err.Error(), "out of range")
}

func TestNominatimGeocode_Throttled(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusTooManyRequests, ``)

	p := NewNominatimProvider(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := p.Geocode(context.Background(), "Los Angeles")
	assert.True(t, IsKind(err, KindRateLimited))
}

func TestNominatimGeocode_Viewbox(t *testing.T) {
	srv, last := newJSONServer(t, http.StatusOK, `[]`)

	p := NewNominatimProvider(WithBaseURL(srv.URL), WithRateLimit(0), WithBounds(Bounds{South: 33, West: -119, North: 35, East: -117}))
	_, _ = p.Geocode(context.Background(), "Pasadena")
	assert.Equal(t, "-119,35,-117,33", last.URL.Query().Get("viewbox"))
}

func TestNominatimGeocode_ContextCanceled(t *testing.T) {
	srv, _ := newJSONServer(t, http.StatusOK, `[]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewNominatimProvider(WithBaseURL(srv.URL))
	_, err := p.Geocode(ctx, "Los Angeles")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
}
