package geocode

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"los angeles", 34.0, -118.0, false},
		{"poles and antimeridian", -90, 180, false},
		{"lat too high", 90.0001, 0, true},
		{"lon too low", 0, -180.5, true},
		{"nan", math.NaN(), 0, true},
		{"inf", 0, math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Result{Latitude: tt.lat, Longitude: tt.lon}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var nilResult *Result
	assert.Error(t, nilResult.Validate())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := NewProviderError(KindRateLimited, "googlev3", "Pasadena", nil)
	wrapped := eris.Wrap(base, "engine: geocode row 3")

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, kind)
	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsKind(wrapped, KindAuth))

	_, ok = KindOf(eris.New("plain"))
	assert.False(t, ok)
}

func TestProviderErrorMessage(t *testing.T) {
	err := NewProviderError(KindNotFound, "test", "7", nil)
	assert.Equal(t, `geocode: test: not_found for "7"`, err.Error())

	err = NewProviderError(KindTransport, "nominatim", "x", eris.New("connection reset"))
	assert.Contains(t, err.Error(), "transport_error")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestStatusKind(t *testing.T) {
	assert.Equal(t, KindInvalidQuery, statusKind(400))
	assert.Equal(t, KindInvalidQuery, statusKind(422))
	assert.Equal(t, KindAuth, statusKind(401))
	assert.Equal(t, KindAuth, statusKind(403))
	assert.Equal(t, KindRateLimited, statusKind(402))
	assert.Equal(t, KindRateLimited, statusKind(429))
	assert.Equal(t, KindNotFound, statusKind(404))
	assert.Equal(t, KindTransport, statusKind(500))
	assert.Equal(t, KindTransport, statusKind(504))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
