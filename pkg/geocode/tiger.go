package geocode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/db"
)

// tigerRaw is the raw payload recorded for a TIGER match.
type tigerRaw struct {
	Rating         int    `json:"rating"`
	MatchedAddress string `json:"matched_address"`
	CountyFIPS     string `json:"county_fips,omitempty"`
}

// TigerProvider geocodes via the PostGIS TIGER/Line geocoder.
type TigerProvider struct {
	pool      db.Pool
	maxRating int
}

// NewTigerProvider creates a TigerProvider with the given pool and max rating
// threshold. Lower ratings are better; 0 is an exact match.
func NewTigerProvider(pool db.Pool, maxRating int) *TigerProvider {
	return &TigerProvider{pool: pool, maxRating: maxRating}
}

// Name implements Provider.
func (p *TigerProvider) Name() string { return "tiger" }

// Geocode implements Provider.
func (p *TigerProvider) Geocode(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewProviderError(KindInvalidQuery, p.Name(), query, eris.New("empty address"))
	}

	var lat, lon float64
	var rating int
	var matchedAddr string
	var countyFIPS sql.NullString

	row := p.pool.QueryRow(ctx, `
		SELECT
			ST_Y(geomout) AS lat,
			ST_X(geomout) AS lon,
			rating,
			pprint_addy(addy) AS matched_address,
			(addy).statefp || (addy).countyfp AS county_fips
		FROM geocode($1, 1)`,
		query,
	)

	err := row.Scan(&lat, &lon, &rating, &matchedAddr, &countyFIPS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewProviderError(KindNotFound, p.Name(), query, nil)
	}
	if err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "tiger geocode query"))
	}

	if rating > p.maxRating {
		zap.L().Debug("tiger provider: rating exceeds threshold",
			zap.String("address", query),
			zap.Int("rating", rating),
			zap.Int("max_rating", p.maxRating),
		)
		return nil, NewProviderError(KindNotFound, p.Name(), query,
			eris.Errorf("rating %d exceeds max %d", rating, p.maxRating))
	}

	raw, err := json.Marshal(tigerRaw{Rating: rating, MatchedAddress: matchedAddr, CountyFIPS: countyFIPS.String})
	if err != nil {
		return nil, NewProviderError(KindTransport, p.Name(), query, eris.Wrap(err, "marshal raw"))
	}

	return checked(p.Name(), query, &Result{
		Latitude:  lat,
		Longitude: lon,
		Address:   matchedAddr,
		Raw:       raw,
	})
}
