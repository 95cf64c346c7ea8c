package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeocodeConfig configures a geocoding run.
type GeocodeConfig struct {
	Location        string        `yaml:"location" mapstructure:"location"`
	Delay           time.Duration `yaml:"delay" mapstructure:"delay"`
	Output          string        `yaml:"output" mapstructure:"output"`
	LatitudeColumn  string        `yaml:"latitude_column" mapstructure:"latitude_column"`
	LongitudeColumn string        `yaml:"longitude_column" mapstructure:"longitude_column"`
	GeometryColumn  string        `yaml:"geometry_column" mapstructure:"geometry_column"`
	Raw             bool          `yaml:"raw" mapstructure:"raw"`
	RawColumn       string        `yaml:"raw_column" mapstructure:"raw_column"`
	ProviderColumn  string        `yaml:"provider_column" mapstructure:"provider_column"`
	Force           bool          `yaml:"force" mapstructure:"force"`
	Limit           int           `yaml:"limit" mapstructure:"limit"`
	Report          string        `yaml:"report" mapstructure:"report"`
}

// RetryConfig bounds retries of provider calls.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier        float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RateLimitAttempts int     `yaml:"rate_limit_attempts" mapstructure:"rate_limit_attempts"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Mapbox    KeyConfig       `yaml:"mapbox" mapstructure:"mapbox"`
	OpenCage  KeyConfig       `yaml:"opencage" mapstructure:"opencage"`
	MapQuest  KeyConfig       `yaml:"mapquest" mapstructure:"mapquest"`
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Tiger     TigerConfig     `yaml:"tiger" mapstructure:"tiger"`
}

// GoogleConfig holds Google Maps Geocoding API settings.
type GoogleConfig struct {
	Key    string `yaml:"key" mapstructure:"key"`
	Domain string `yaml:"domain" mapstructure:"domain"`
}

// NominatimConfig holds Nominatim server settings.
type NominatimConfig struct {
	Domain    string  `yaml:"domain" mapstructure:"domain"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// KeyConfig holds an API key.
type KeyConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// CensusConfig holds Census Bureau geocoder settings.
type CensusConfig struct {
	Benchmark string `yaml:"benchmark" mapstructure:"benchmark"`
}

// TigerConfig configures the PostGIS TIGER geocoder.
type TigerConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxRating   int    `yaml:"max_rating" mapstructure:"max_rating"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("geocode")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider key variables.
	for key, env := range map[string]string{
		"providers.google.key":   "GOOGLE_API_KEY",
		"providers.mapbox.key":   "MAPBOX_API_KEY",
		"providers.opencage.key": "OPENCAGE_API_KEY",
		"providers.mapquest.key": "MAPQUEST_API_KEY",
	} {
		if err := v.BindEnv(key, "GEOCODE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("geocode.location", "{location}")
	v.SetDefault("geocode.delay", "1s")
	v.SetDefault("geocode.output", "coordinates")
	v.SetDefault("geocode.latitude_column", "latitude")
	v.SetDefault("geocode.longitude_column", "longitude")
	v.SetDefault("geocode.geometry_column", "geometry")
	v.SetDefault("geocode.raw", false)
	v.SetDefault("geocode.raw_column", "raw")
	v.SetDefault("geocode.provider_column", "")
	v.SetDefault("geocode.force", false)
	v.SetDefault("geocode.limit", 0)
	v.SetDefault("geocode.report", "text")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.rate_limit_attempts", 1)
	v.SetDefault("providers.google.key", "")
	v.SetDefault("providers.google.domain", "maps.googleapis.com")
	v.SetDefault("providers.nominatim.domain", "nominatim.openstreetmap.org")
	v.SetDefault("providers.nominatim.user_agent", "geocode-cli")
	v.SetDefault("providers.nominatim.rps", 1.0)
	v.SetDefault("providers.mapbox.key", "")
	v.SetDefault("providers.opencage.key", "")
	v.SetDefault("providers.mapquest.key", "")
	v.SetDefault("providers.census.benchmark", "Public_AR_Current")
	v.SetDefault("providers.tiger.database_url", "")
	v.SetDefault("providers.tiger.max_rating", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given provider command. Every
// problem found is reported in a single error.
func (c *Config) Validate(provider string) error {
	var errs []string

	switch c.Store.Driver {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pgx", "duckdb":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	switch strings.ToLower(c.Geocode.Output) {
	case "", "coordinates", "geojson", "spatial":
	default:
		errs = append(errs, fmt.Sprintf("geocode.output %q is not supported", c.Geocode.Output))
	}
	switch strings.ToLower(c.Geocode.Report) {
	case "", "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Sprintf("geocode.report %q is not supported (text, json, yaml)", c.Geocode.Report))
	}
	if c.Geocode.Delay < 0 {
		errs = append(errs, "geocode.delay must be >= 0")
	}
	if c.Geocode.Limit < 0 {
		errs = append(errs, "geocode.limit must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.RateLimitAttempts < 1 {
		errs = append(errs, "retry.rate_limit_attempts must be >= 1")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		errs = append(errs, "retry.jitter_fraction must be between 0 and 1")
	}

	switch provider {
	case "test", "census":
	case "nominatim":
		if c.Providers.Nominatim.UserAgent == "" {
			errs = append(errs, "providers.nominatim.user_agent is required")
		}
	case "googlev3":
		if c.Providers.Google.Key == "" {
			errs = append(errs, "providers.google.key is required")
		}
	case "mapbox":
		if c.Providers.Mapbox.Key == "" {
			errs = append(errs, "providers.mapbox.key is required")
		}
	case "opencage":
		if c.Providers.OpenCage.Key == "" {
			errs = append(errs, "providers.opencage.key is required")
		}
	case "mapquest", "open-mapquest":
		if c.Providers.MapQuest.Key == "" {
			errs = append(errs, "providers.mapquest.key is required")
		}
	case "tiger":
		if c.TigerDatabaseURL() == "" {
			errs = append(errs, "providers.tiger.database_url (or store.database_url) is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", provider))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TigerDatabaseURL returns the TIGER geocoder database, falling back to the
// store database when no dedicated one is configured.
func (c *Config) TigerDatabaseURL() string {
	if c.Providers.Tiger.DatabaseURL != "" {
		return c.Providers.Tiger.DatabaseURL
	}
	if strings.HasPrefix(c.Store.Driver, "postgres") || c.Store.Driver == "pgx" {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
