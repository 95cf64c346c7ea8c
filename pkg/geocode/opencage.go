package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

const opencageDefaultBaseURL = "https://api.opencagedata.com"

type opencageResponse struct {
	Results []json.RawMessage `json:"results"`
	Status  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type opencageResult struct {
	Geometry struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"geometry"`
	Formatted string `json:"formatted"`
}

// OpenCageProvider geocodes through the OpenCage Geocoding API.
type OpenCageProvider struct {
	key string
	cfg httpConfig
}

// NewOpenCageProvider creates an OpenCageProvider.
func NewOpenCageProvider(key string, opts ...Option) *OpenCageProvider {
	return &OpenCageProvider{key: key, cfg: newHTTPConfig(opencageDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *OpenCageProvider) Name() string { return "opencage" }

// Geocode implements Provider.
func (p *OpenCageProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if p.key == "" {
		return nil, NewProviderError(KindAuth, p.Name(), query, eris.New("opencage api key not configured"))
	}

	params := url.Values{
		"q":              {query},
		"key":            {p.key},
		"limit":          {"1"},
		"no_annotations": {"1"},
	}
	if b := p.cfg.bounds; b != nil {
		params.Set("bounds", fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North))
	}

	body, err := p.cfg.get(ctx, p.Name(), query, p.cfg.baseURL+"/geocode/v1/json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp opencageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}
	if resp.Status.Code != 0 && resp.Status.Code != 200 {
		return nil, NewProviderError(statusKind(resp.Status.Code), p.Name(), query, eris.New(resp.Status.Message))
	}
	if len(resp.Results) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	var first opencageResult
	if err := json.Unmarshal(resp.Results[0], &first); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse result"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  first.Geometry.Lat,
		Longitude: first.Geometry.Lng,
		Address:   first.Formatted,
		Raw:       resp.Results[0],
	})
}
