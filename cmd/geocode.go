package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/config"
	"github.com/sells-group/geocode-cli/internal/geocoding"
	"github.com/sells-group/geocode-cli/internal/resilience"
	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

// providerBuilder constructs a provider from the effective configuration.
// The returned cleanup func is always non-nil.
type providerBuilder func(ctx context.Context, cmd *cobra.Command, c *config.Config, database string) (geocode.Provider, func(), error)

func noCleanup() {}

// newProviderCmd builds a `<provider> DATABASE TABLE` subcommand.
func newProviderCmd(name, short string, build providerBuilder) *cobra.Command {
	c := &cobra.Command{
		Use:   name + " DATABASE TABLE",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeocode(cmd, args, name, build)
		},
	}
	addOutputFlags(c)
	addRunFlags(c)
	return c
}

// addOutputFlags registers the flags that select where results go. They are
// shared by every provider command and by status.
func addOutputFlags(c *cobra.Command) {
	c.Flags().String("driver", "", "database driver: sqlite, postgres or duckdb")
	c.Flags().String("latitude", "", "latitude column")
	c.Flags().String("longitude", "", "longitude column")
	c.Flags().Bool("geojson", false, "store a GeoJSON point in the geometry column instead of latitude/longitude")
	c.Flags().Bool("spatial", false, "store a native spatial point in the geometry column")
	c.Flags().String("geometry-column", "", "geometry column for --geojson and --spatial")
}

func addRunFlags(c *cobra.Command) {
	c.Flags().StringP("location", "l", "", "location template, e.g. \"{address}, {city}, {state}\"")
	c.Flags().DurationP("delay", "d", 0, "minimum delay between provider calls")
	c.Flags().Bool("raw", false, "store the raw provider response")
	c.Flags().String("raw-column", "", "column for --raw")
	c.Flags().String("provider-column", "", "also record the provider name in this column")
	c.Flags().Bool("force", false, "geocode rows that already have results")
	c.Flags().Int("limit", 0, "stop after this many rows (0 = no limit)")
	c.Flags().String("report", "", "report format: text, json or yaml")
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	setString := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	setString("driver", &c.Store.Driver)
	setString("latitude", &c.Geocode.LatitudeColumn)
	setString("longitude", &c.Geocode.LongitudeColumn)
	setString("geometry-column", &c.Geocode.GeometryColumn)
	setString("location", &c.Geocode.Location)
	setString("raw-column", &c.Geocode.RawColumn)
	setString("provider-column", &c.Geocode.ProviderColumn)
	setString("report", &c.Geocode.Report)
	setBool("raw", &c.Geocode.Raw)
	setBool("force", &c.Geocode.Force)
	if f.Changed("delay") {
		c.Geocode.Delay, _ = f.GetDuration("delay")
	}
	if f.Changed("limit") {
		c.Geocode.Limit, _ = f.GetInt("limit")
	}

	geojson, _ := f.GetBool("geojson")
	spatial, _ := f.GetBool("spatial")
	switch {
	case geojson && spatial:
		return eris.New("geocode: --geojson and --spatial are mutually exclusive")
	case geojson:
		c.Geocode.Output = string(geocoding.ModeGeoJSON)
	case spatial:
		c.Geocode.Output = string(geocoding.ModeSpatial)
	}
	return nil
}

// writerConfig maps the effective configuration onto a result writer.
func writerConfig(c *config.Config) (geocoding.WriterConfig, error) {
	mode, err := geocoding.ParseOutputMode(c.Geocode.Output)
	if err != nil {
		return geocoding.WriterConfig{}, err
	}
	return geocoding.WriterConfig{
		Mode:            mode,
		LatitudeColumn:  c.Geocode.LatitudeColumn,
		LongitudeColumn: c.Geocode.LongitudeColumn,
		GeometryColumn:  c.Geocode.GeometryColumn,
		CaptureRaw:      c.Geocode.Raw,
		RawColumn:       c.Geocode.RawColumn,
		ProviderColumn:  c.Geocode.ProviderColumn,
	}, nil
}

func engineOptions(c *config.Config) geocoding.EngineOptions {
	r := c.Retry
	limited := resilience.FromRetryConfig(r.RateLimitAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
	if r.RateLimitAttempts < 1 {
		limited = resilience.NoRetry()
	}
	return geocoding.EngineOptions{
		Force:          c.Geocode.Force,
		Limit:          c.Geocode.Limit,
		Retry:          resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction),
		RateLimitRetry: limited,
	}
}

func runGeocode(cmd *cobra.Command, args []string, name string, build providerBuilder) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, tableName := args[0], args[1]
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	applyProviderFlags(cmd, cfg)
	if err := cfg.Validate(name); err != nil {
		return err
	}

	tpl, err := geocoding.ParseTemplate(cfg.Geocode.Location)
	if err != nil {
		return &geocoding.ConfigError{Msg: "invalid location template", Err: err}
	}
	wcfg, err := writerConfig(cfg)
	if err != nil {
		return err
	}
	writer, err := geocoding.NewWriter(wcfg)
	if err != nil {
		return err
	}

	// The provider is built first so a reference table is read and closed
	// before the target table is opened.
	provider, cleanup, err := build(ctx, cmd, cfg, database)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := store.Open(ctx, cfg.Store.Driver, database, tableName)
	if err != nil {
		return eris.Wrapf(err, "geocode: open %s", tableName)
	}
	defer st.Close() //nolint:errcheck

	log := zap.L().With(zap.String("command", name))

	opts := engineOptions(cfg)
	var bar *progressbar.ProgressBar
	opts.OnStart = func(total int) {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Geocoding "+tableName),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
	}
	opts.OnRow = func(geocoding.RowOutcome) {
		if bar != nil {
			if err := bar.Add(1); err != nil {
				log.Debug("progress bar update failed", zap.Error(err))
			}
		}
	}

	engine := geocoding.NewEngine(st, provider, tpl, writer, geocoding.NewPacer(cfg.Geocode.Delay, nil), opts)
	prog, runErr := engine.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}

	// A configuration error means nothing ran; there is nothing to report.
	var cfgErr *geocoding.ConfigError
	if errors.As(runErr, &cfgErr) {
		return runErr
	}

	report := geocoding.NewReport(st.Table(), provider.Name(), prog, runErr)
	if err := report.Format(cmd.OutOrStdout(), cfg.Geocode.Report); err != nil {
		return err
	}
	return runErr
}
