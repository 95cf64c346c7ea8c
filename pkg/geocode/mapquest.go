package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	mapquestDefaultBaseURL     = "https://www.mapquestapi.com"
	openMapquestDefaultBaseURL = "https://open.mapquestapi.com"
)

type mapquestResponse struct {
	Info struct {
		StatusCode int      `json:"statuscode"`
		Messages   []string `json:"messages"`
	} `json:"info"`
	Results []struct {
		Locations []json.RawMessage `json:"locations"`
	} `json:"results"`
}

type mapquestLocation struct {
	LatLng struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"latLng"`
	Street     string `json:"street"`
	City       string `json:"adminArea5"`
	State      string `json:"adminArea3"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"adminArea1"`
}

func (l mapquestLocation) address() string {
	var parts []string
	for _, p := range []string{l.Street, l.City, l.State, l.PostalCode, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// MapQuestProvider geocodes through the MapQuest Geocoding API (v1 address).
// The same protocol is served from the licensed and the open (OSM-backed)
// hosts; name tells them apart.
type MapQuestProvider struct {
	name string
	key  string
	cfg  httpConfig
}

// NewMapQuestProvider creates a MapQuestProvider against the licensed
// host. WithBounds maps to boundingBox.
func NewMapQuestProvider(key string, opts ...Option) *MapQuestProvider {
	return &MapQuestProvider{name: "mapquest", key: key, cfg: newHTTPConfig(mapquestDefaultBaseURL, opts)}
}

// NewOpenMapQuestProvider creates a MapQuestProvider against the open host.
func NewOpenMapQuestProvider(key string, opts ...Option) *MapQuestProvider {
	return &MapQuestProvider{name: "open-mapquest", key: key, cfg: newHTTPConfig(openMapquestDefaultBaseURL, opts)}
}

// Name implements Provider.
func (p *MapQuestProvider) Name() string { return p.name }

// Geocode implements Provider.
func (p *MapQuestProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if p.key == "" {
		return nil, NewProviderError(KindAuth, p.Name(), query, eris.New("mapquest api key not configured"))
	}
	if query == "" {
		return nil, NewProviderError(KindInvalidQuery, p.Name(), query, eris.New("empty query"))
	}

	params := url.Values{
		"key":        {p.key},
		"location":   {query},
		"maxResults": {"1"},
	}
	if b := p.cfg.bounds; b != nil {
		// Upper-left corner, then lower-right.
		params.Set("boundingBox", fmt.Sprintf("%g,%g,%g,%g", b.North, b.West, b.South, b.East))
	}

	body, err := p.cfg.get(ctx, p.Name(), query, p.cfg.baseURL+"/geocoding/v1/address?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp mapquestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse response"))
	}
	if code := resp.Info.StatusCode; code != 0 {
		return nil, NewProviderError(statusKind(code), p.Name(), query,
			eris.Errorf("info status %d: %s", code, strings.Join(resp.Info.Messages, "; ")))
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Locations) == 0 {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}

	raw := resp.Results[0].Locations[0]
	var loc mapquestLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "parse location"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  loc.LatLng.Lat,
		Longitude: loc.LatLng.Lng,
		Address:   loc.address(),
		Raw:       raw,
	})
}
