// Package config loads settings from an optional YAML file and MAPVIEW_*
// environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Locator  LocatorConfig  `yaml:"locator" mapstructure:"locator"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocoderConfig configures the place search backend.
type GeocoderConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	ResultLimit  int     `yaml:"result_limit" mapstructure:"result_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Cache        string  `yaml:"cache" mapstructure:"cache"` // duckdb, memory or off
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// MapConfig configures the initial view and the layer catalog.
type MapConfig struct {
	CenterLat   float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon   float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom        int     `yaml:"zoom" mapstructure:"zoom"`
	FlyMillis   int     `yaml:"fly_millis" mapstructure:"fly_millis"`
	CatalogPath string  `yaml:"catalog_path" mapstructure:"catalog_path"`
	BaseLayer   string  `yaml:"base_layer" mapstructure:"base_layer"`
}

// LocatorConfig selects where device locations come from.
type LocatorConfig struct {
	Mode      string  `yaml:"mode" mapstructure:"mode"` // browser or static
	StaticLat float64 `yaml:"static_lat" mapstructure:"static_lat"`
	StaticLon float64 `yaml:"static_lon" mapstructure:"static_lon"`
}

// SessionConfig holds the initial session flag.
type SessionConfig struct {
	LoggedIn bool `yaml:"logged_in" mapstructure:"logged_in"`
}

// Load reads configuration. An empty path looks for mapview.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mapview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MAPVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocoder.user_agent", "plat-mapview/1.0")
	v.SetDefault("geocoder.rate_per_sec", 1.0)
	v.SetDefault("geocoder.result_limit", 5)
	v.SetDefault("geocoder.timeout_secs", 15)
	v.SetDefault("geocoder.cache", "duckdb")
	v.SetDefault("geocoder.cache_ttl_days", 30)
	v.SetDefault("map.center_lat", 51.505)
	v.SetDefault("map.center_lon", -0.09)
	v.SetDefault("map.zoom", 13)
	v.SetDefault("map.fly_millis", 500)
	v.SetDefault("map.catalog_path", "")
	v.SetDefault("map.base_layer", "")
	v.SetDefault("locator.mode", "browser")
	v.SetDefault("locator.static_lat", 51.505)
	v.SetDefault("locator.static_lon", -0.09)
	v.SetDefault("session.logged_in", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Geocoder.Cache {
	case "duckdb", "memory", "off":
	default:
		return eris.Errorf("config: geocoder.cache must be duckdb, memory or off, got %q", c.Geocoder.Cache)
	}
	switch c.Locator.Mode {
	case "browser", "static":
	default:
		return eris.Errorf("config: locator.mode must be browser or static, got %q", c.Locator.Mode)
	}
	if c.Geocoder.RatePerSec <= 0 {
		return eris.New("config: geocoder.rate_per_sec must be positive")
	}
	return nil
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
