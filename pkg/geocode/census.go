package geocode

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
)

const (
	censusDefaultBaseURL = "https://geocoding.geo.census.gov"
	censusOneLinePath    = "/geocoder/locations/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []json.RawMessage `json:"addressMatches"`
	} `json:"result"`
	Errors []string `json:"errors"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string `json:"matchedAddress"`
}

// CensusProvider geocodes US addresses through the Census Bureau one-line API.
// It needs no credentials.
type CensusProvider struct {
	benchmark string
	cfg       httpConfig
}

// NewCensusProvider creates a CensusProvider. An empty benchmark uses the
// current public address ranges.
func NewCensusProvider(benchmark string, opts ...Option) *CensusProvider {
	if benchmark == "" {
		benchmark = censusBenchmark
	}
	return &CensusProvider{benchmark: benchmark, cfg: newHTTPConfig(censusDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return "census" }

// Geocode implements Provider.
func (p *CensusProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	params := url.Values{
		"address":   {query},
		"benchmark": {p.benchmark},
		"format":    {"json"},
	}

	body, err := p.cfg.get(ctx, p.Name(), query, p.cfg.baseURL+censusOneLinePath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp censusOneLineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}
	if len(resp.Errors) > 0 {
		return nil, NewProviderError(KindInvalidQuery, p.Name(), query, eris.New(resp.Errors[0]))
	}
	if len(resp.Result.AddressMatches) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	var match censusAddressMatch
	if err := json.Unmarshal(resp.Result.AddressMatches[0], &match); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse match"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  match.Coordinates.Y,
		Longitude: match.Coordinates.X,
		Address:   match.MatchedAddress,
		Raw:       resp.Result.AddressMatches[0],
	})
}
