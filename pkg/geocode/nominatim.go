package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimDefaultBaseURL = "https://nominatim.openstreetmap.org"

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimProvider geocodes through an OpenStreetMap Nominatim server.
// The public server's usage policy allows one request per second and
// requires an identifying User-Agent, so both are set by default.
type NominatimProvider struct {
	cfg httpConfig
}

// NewNominatimProvider creates a NominatimProvider.
func NewNominatimProvider(opts ...Option) *NominatimProvider {
	opts = append([]Option{WithRateLimit(1)}, opts...)
	return &NominatimProvider{cfg: newHTTPConfig(nominatimDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if b := p.cfg.bounds; b != nil {
		params.Set("viewbox", fmt.Sprintf("%g,%g,%g,%g", b.West, b.North, b.East, b.South))
	}

	body, err := p.cfg.get(ctx, p.Name(), query, p.cfg.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var places []json.RawMessage
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}
	if len(places) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	var place nominatimPlace
	if err := json.Unmarshal(places[0], &place); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse place"))
	}
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse lat"))
	}
	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse lon"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  lat,
		Longitude: lon,
		Address:   place.DisplayName,
		Raw:       places[0],
	})
}
