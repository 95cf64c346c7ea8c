package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geocode-cli/internal/config"
	"github.com/sells-group/geocode-cli/internal/db"
	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

var (
	testCmd      = newProviderCmd("test", "Geocode against a local reference dataset", buildReference)
	googleCmd    = newProviderCmd("googlev3", "Geocode with the Google Maps Geocoding API", buildGoogle)
	nominatimCmd = newProviderCmd("nominatim", "Geocode with OpenStreetMap Nominatim", buildNominatim)
	mapboxCmd    = newProviderCmd("mapbox", "Geocode with the Mapbox Geocoding API", buildMapbox)
	opencageCmd  = newProviderCmd("opencage", "Geocode with the OpenCage Geocoding API", buildOpenCage)
	mapquestCmd  = newProviderCmd("mapquest", "Geocode with the MapQuest Geocoding API", buildMapQuest)
	openMQCmd    = newProviderCmd("open-mapquest", "Geocode with the Open MapQuest Geocoding API", buildOpenMapQuest)
	censusCmd    = newProviderCmd("census", "Geocode US addresses with the Census Bureau geocoder", buildCensus)
	tigerCmd     = newProviderCmd("tiger", "Geocode US addresses with the PostGIS TIGER geocoder", buildTiger)
)

func init() {
	addReferenceFlags(testCmd)

	for _, c := range []*cobra.Command{googleCmd, mapboxCmd, opencageCmd, mapquestCmd, openMQCmd} {
		c.Flags().StringP("api-key", "k", "", "API key (overrides config and environment)")
	}
	for _, c := range []*cobra.Command{googleCmd, nominatimCmd, mapboxCmd, opencageCmd, mapquestCmd} {
		c.Flags().String("bbox", "", "bias results to a bounding box given by two corners: lat1,lon1,lat2,lon2")
	}
	googleCmd.Flags().String("domain", "", "API domain, e.g. maps.google.cn")
	nominatimCmd.Flags().String("domain", "", "Nominatim server domain")
	nominatimCmd.Flags().String("user-agent", "", "User-Agent sent to Nominatim")
	mapboxCmd.Flags().String("proximity", "", "bias results toward a point: lat,lon")
	censusCmd.Flags().String("benchmark", "", "Census benchmark name")
	tigerCmd.Flags().Int("max-rating", 0, "reject TIGER matches rated worse than this")

	rootCmd.AddCommand(testCmd, googleCmd, nominatimCmd, mapboxCmd, opencageCmd, mapquestCmd, openMQCmd, censusCmd, tigerCmd)
}

func addReferenceFlags(c *cobra.Command) {
	c.Flags().String("reference", "", "GeoJSON FeatureCollection of reference points")
	c.Flags().String("reference-table", "", "table in DATABASE holding reference points")
	c.Flags().String("reference-key", "", "property or column matched against the rendered query (default: feature id, or \"id\" for tables)")
	c.Flags().String("reference-geometry", "geometry", "column of --reference-table holding GeoJSON points")
}

// overrideString copies flag name over dst when the user set it.
func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// applyProviderFlags copies provider-specific flags over the configuration
// so that Validate sees the effective credentials.
func applyProviderFlags(cmd *cobra.Command, c *config.Config) {
	switch cmd.Name() {
	case "googlev3":
		overrideString(cmd, "api-key", &c.Providers.Google.Key)
		overrideString(cmd, "domain", &c.Providers.Google.Domain)
	case "nominatim":
		overrideString(cmd, "domain", &c.Providers.Nominatim.Domain)
		overrideString(cmd, "user-agent", &c.Providers.Nominatim.UserAgent)
	case "mapbox":
		overrideString(cmd, "api-key", &c.Providers.Mapbox.Key)
	case "opencage":
		overrideString(cmd, "api-key", &c.Providers.OpenCage.Key)
	case "mapquest", "open-mapquest":
		overrideString(cmd, "api-key", &c.Providers.MapQuest.Key)
	case "census":
		overrideString(cmd, "benchmark", &c.Providers.Census.Benchmark)
	case "tiger":
		if cmd.Flags().Changed("max-rating") {
			c.Providers.Tiger.MaxRating, _ = cmd.Flags().GetInt("max-rating")
		}
	}
}

// biasOptions turns --bbox and --proximity into provider options.
func biasOptions(cmd *cobra.Command) ([]geocode.Option, error) {
	var opts []geocode.Option
	if f := cmd.Flags().Lookup("bbox"); f != nil && f.Value.String() != "" {
		b, err := geocode.ParseBounds(f.Value.String())
		if err != nil {
			return nil, eris.Wrap(err, "geocode: --bbox")
		}
		opts = append(opts, geocode.WithBounds(b))
	}
	if f := cmd.Flags().Lookup("proximity"); f != nil && f.Value.String() != "" {
		p, err := geocode.ParsePoint(f.Value.String())
		if err != nil {
			return nil, eris.Wrap(err, "geocode: --proximity")
		}
		opts = append(opts, geocode.WithProximity(p))
	}
	return opts, nil
}

func buildGoogle(_ context.Context, cmd *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	opts, err := biasOptions(cmd)
	if err != nil {
		return nil, noCleanup, err
	}
	opts = append(opts, geocode.WithBaseURL(c.Providers.Google.Domain))
	return geocode.NewGoogleProvider(c.Providers.Google.Key, opts...), noCleanup, nil
}

func buildNominatim(_ context.Context, cmd *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	opts, err := biasOptions(cmd)
	if err != nil {
		return nil, noCleanup, err
	}
	opts = append(opts,
		geocode.WithBaseURL(c.Providers.Nominatim.Domain),
		geocode.WithUserAgent(c.Providers.Nominatim.UserAgent),
		geocode.WithRateLimit(c.Providers.Nominatim.RPS),
	)
	return geocode.NewNominatimProvider(opts...), noCleanup, nil
}

func buildMapbox(_ context.Context, cmd *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	opts, err := biasOptions(cmd)
	if err != nil {
		return nil, noCleanup, err
	}
	return geocode.NewMapboxProvider(c.Providers.Mapbox.Key, opts...), noCleanup, nil
}

func buildOpenCage(_ context.Context, cmd *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	opts, err := biasOptions(cmd)
	if err != nil {
		return nil, noCleanup, err
	}
	return geocode.NewOpenCageProvider(c.Providers.OpenCage.Key, opts...), noCleanup, nil
}

func buildMapQuest(_ context.Context, cmd *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	opts, err := biasOptions(cmd)
	if err != nil {
		return nil, noCleanup, err
	}
	return geocode.NewMapQuestProvider(c.Providers.MapQuest.Key, opts...), noCleanup, nil
}

func buildOpenMapQuest(_ context.Context, _ *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	return geocode.NewOpenMapQuestProvider(c.Providers.MapQuest.Key), noCleanup, nil
}

func buildCensus(_ context.Context, _ *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	return geocode.NewCensusProvider(c.Providers.Census.Benchmark), noCleanup, nil
}

func buildTiger(ctx context.Context, _ *cobra.Command, c *config.Config, _ string) (geocode.Provider, func(), error) {
	pool, err := db.Connect(ctx, c.TigerDatabaseURL())
	if err != nil {
		return nil, noCleanup, eris.Wrap(err, "geocode: tiger")
	}
	return geocode.NewTigerProvider(pool, c.Providers.Tiger.MaxRating), pool.Close, nil
}

func buildReference(ctx context.Context, cmd *cobra.Command, c *config.Config, database string) (geocode.Provider, func(), error) {
	file, _ := cmd.Flags().GetString("reference")
	refTable, _ := cmd.Flags().GetString("reference-table")
	key, _ := cmd.Flags().GetString("reference-key")

	switch {
	case file != "" && refTable != "":
		return nil, noCleanup, eris.New("geocode: --reference and --reference-table are mutually exclusive")
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, noCleanup, eris.Wrap(err, "geocode: open reference file")
		}
		defer f.Close() //nolint:errcheck
		p, err := geocode.LoadReferenceGeoJSON(f, key)
		if err != nil {
			return nil, noCleanup, err
		}
		return p, noCleanup, nil
	case refTable != "":
		if key == "" {
			key = "id"
		}
		geomCol, _ := cmd.Flags().GetString("reference-geometry")
		rows, err := loadTableRows(ctx, c.Store.Driver, database, refTable)
		if err != nil {
			return nil, noCleanup, err
		}
		p, err := geocode.ReferenceFromRows(rows, key, geomCol)
		if err != nil {
			return nil, noCleanup, err
		}
		return p, noCleanup, nil
	default:
		return nil, noCleanup, eris.New("geocode: test provider needs --reference or --reference-table")
	}
}

// loadTableRows reads every row of a table as a plain column map.
func loadTableRows(ctx context.Context, driver, database, table string) ([]map[string]any, error) {
	st, err := store.Open(ctx, driver, database, table)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: open reference table %s", table)
	}
	defer st.Close() //nolint:errcheck

	rows, err := st.Rows(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: read reference table %s", table)
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out, nil
}
