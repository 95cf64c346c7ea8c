package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleDefaultBaseURL = "https://maps.googleapis.com"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []json.RawMessage `json:"results"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// GoogleProvider geocodes through the Google Maps Geocoding API (v3).
type GoogleProvider struct {
	key string
	cfg httpConfig
}

// NewGoogleProvider creates a GoogleProvider. Use WithBaseURL to target a
// different domain and WithBounds to bias results.
func NewGoogleProvider(key string, opts ...Option) *GoogleProvider {
	return &GoogleProvider{key: key, cfg: newHTTPConfig(googleDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "googlev3" }

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if p.key == "" {
		return nil, NewProviderError(KindAuth, p.Name(), query, eris.New("google api key not configured"))
	}

	params := url.Values{
		"address": {query},
		"key":     {p.key},
	}
	if b := p.cfg.bounds; b != nil {
		params.Set("bounds", fmt.Sprintf("%g,%g|%g,%g", b.South, b.West, b.North, b.East))
	}

	body, err := p.cfg.get(ctx, p.Name(), query, p.cfg.baseURL+"/maps/api/geocode/json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp googleGeocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}

	if kind, failed := googleStatusKind(resp.Status); failed {
		var cause error
		if resp.ErrorMessage != "" {
			cause = eris.New(resp.ErrorMessage)
		}
		return nil, NewProviderError(kind, p.Name(), query, cause)
	}
	if len(resp.Results) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	var first googleResult
	if err := json.Unmarshal(resp.Results[0], &first); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse result"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  first.Geometry.Location.Lat,
		Longitude: first.Geometry.Location.Lng,
		Address:   first.FormattedAddress,
		Raw:       resp.Results[0],
	})
}

// googleStatusKind maps the API's status field to a failure kind. The second
// return is false for OK.
func googleStatusKind(status string) (Kind, bool) {
	switch status {
	case "OK":
		return 0, false
	case "ZERO_RESULTS":
		return KindNotFound, true
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return KindRateLimited, true
	case "REQUEST_DENIED":
		return KindAuth, true
	case "INVALID_REQUEST":
		return KindInvalidQuery, true
	default:
		return KindTransport, true
	}
}
