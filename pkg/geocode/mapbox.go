package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

const mapboxDefaultBaseURL = "https://api.mapbox.com"

type mapboxResponse struct {
	Features []json.RawMessage `json:"features"`
}

type mapboxFeature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
}

// MapboxProvider geocodes through the Mapbox Geocoding API (v5 places).
type MapboxProvider struct {
	token string
	cfg   httpConfig
}

// NewMapboxProvider creates a MapboxProvider. WithBounds maps to bbox and
// WithProximity to proximity.
func NewMapboxProvider(token string, opts ...Option) *MapboxProvider {
	return &MapboxProvider{token: token, cfg: newHTTPConfig(mapboxDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *MapboxProvider) Name() string { return "mapbox" }

// Geocode implements Provider.
func (p *MapboxProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if p.token == "" {
		return nil, NewProviderError(KindAuth, p.Name(), query, eris.New("mapbox access token not configured"))
	}
	if query == "" {
		return nil, NewProviderError(KindInvalidQuery, p.Name(), query, eris.New("empty query"))
	}

	params := url.Values{
		"access_token": {p.token},
		"limit":        {"1"},
	}
	if b := p.cfg.bounds; b != nil {
		params.Set("bbox", fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North))
	}
	if pt := p.cfg.proximity; pt != nil {
		params.Set("proximity", fmt.Sprintf("%g,%g", pt.Longitude, pt.Latitude))
	}

	reqURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		p.cfg.baseURL, url.PathEscape(query), params.Encode())
	body, err := p.cfg.get(ctx, p.Name(), query, reqURL)
	if err != nil {
		return nil, err
	}

	var resp mapboxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}
	if len(resp.Features) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	var feature mapboxFeature
	if err := json.Unmarshal(resp.Features[0], &feature); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse feature"))
	}
	if len(feature.Center) != 2 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, eris.New("feature has no center"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  feature.Center[1],
		Longitude: feature.Center[0],
		Address:   feature.PlaceName,
		Raw:       resp.Features[0],
	})
}
