// Package geocode turns free-text location queries into coordinates through
// interchangeable geocoding backends.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Provider represents a single geocoding backend.
//
// Implementations never retry on their own; retry policy belongs to the
// caller. Failures are reported as *ProviderError so callers can classify
// them with KindOf.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds a successful geocode.
type Result struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Address   string          `json:"address,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Validate reports whether the coordinate pair is finite and within range.
func (r *Result) Validate() error {
	if r == nil {
		return eris.New("geocode: nil result")
	}
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) || r.Latitude < -90 || r.Latitude > 90 {
		return eris.Errorf("geocode: latitude %v out of range", r.Latitude)
	}
	if math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) || r.Longitude < -180 || r.Longitude > 180 {
		return eris.Errorf("geocode: longitude %v out of range", r.Longitude)
	}
	return nil
}

// Kind classifies a provider failure.
type Kind int

const (
	// KindNotFound means the backend had no match for the query.
	KindNotFound Kind = iota + 1
	// KindRateLimited means the backend refused the call because of quota or pacing.
	KindRateLimited
	// KindAuth means credentials are missing, invalid or revoked, or the
	// backend presented a certificate that does not verify.
	KindAuth
	// KindTransport covers network failures and backend-side errors.
	KindTransport
	// KindInvalidQuery means the backend rejected the query itself, or the
	// configured endpoint cannot be reached at all.
	KindInvalidQuery
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth_error"
	case KindTransport:
		return "transport_error"
	case KindInvalidQuery:
		return "invalid_query"
	default:
		return "unknown"
	}
}

// ProviderError is the only error type returned by Provider.Geocode.
type ProviderError struct {
	Kind     Kind
	Provider string
	Query    string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("geocode: %s: %s for %q", e.Provider, e.Kind, e.Query)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError.
func NewProviderError(kind Kind, provider, query string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Query: query, Err: err}
}

// KindOf extracts the failure kind from err, if err carries a ProviderError.
func KindOf(err error) (Kind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a ProviderError of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// checked validates res and converts an out-of-range result into NotFound.
func checked(provider, query string, res *Result) (*Result, error) {
	if err := res.Validate(); err != nil {
		return nil, NewProviderError(KindNotFound, provider, query, err)
	}
	return res, nil
}
