// Package config loads application and per-stream configuration.
package config

import (
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
	Odoo      OdooConfig      `yaml:"odoo" mapstructure:"odoo"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	TradeData TradeDataConfig `yaml:"trade_data" mapstructure:"trade_data"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// OdooConfig holds system-of-record credentials.
type OdooConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
}

// Validate checks that all credentials required to reach the system of
// record are present.
func (c OdooConfig) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "odoo.url")
	}
	if c.Database == "" {
		missing = append(missing, "odoo.database")
	}
	if c.User == "" {
		missing = append(missing, "odoo.user")
	}
	if c.APIKey == "" {
		missing = append(missing, "odoo.api_key")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PlacesConfig holds Places API settings.
type PlacesConfig struct {
	APIKey             string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	RequestDelayMS     int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	PageTokenDelayMS   int    `yaml:"page_token_delay_ms" mapstructure:"page_token_delay_ms"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestDelay returns the inter-request pacing interval.
func (c PlacesConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// PageTokenDelay returns the continuation-token propagation delay.
// Continuation tokens only become valid after a short server-side delay;
// requesting too soon yields an empty page.
func (c PlacesConfig) PageTokenDelay() time.Duration {
	return time.Duration(c.PageTokenDelayMS) * time.Millisecond
}

// TradeDataConfig holds trade-data scraper settings.
type TradeDataConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	RequestDelayMS     int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RequestDelay returns the politeness delay preceding every fetch. The
// source has no documented rate limit; this is a conservative default.
func (c TradeDataConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// ResearchConfig configures the discovery run itself.
type ResearchConfig struct {
	StreamsDir string `yaml:"streams_dir" mapstructure:"streams_dir"`
	MaxNew     int    `yaml:"max_new" mapstructure:"max_new"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so they stay visible to
	// Unmarshal when supplied only through the environment.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "prospect.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("odoo.url", "")
	v.SetDefault("odoo.database", "")
	v.SetDefault("odoo.user", "")
	v.SetDefault("odoo.api_key", "")
	v.SetDefault("places.api_key", "")
	v.SetDefault("trade_data.base_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.request_delay_ms", 500)
	v.SetDefault("places.page_token_delay_ms", 2000)
	v.SetDefault("places.request_timeout_secs", 15)
	v.SetDefault("trade_data.request_delay_ms", 3000)
	v.SetDefault("trade_data.request_timeout_secs", 15)
	v.SetDefault("trade_data.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("research.streams_dir", "streams")
	v.SetDefault("research.max_new", 0)

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
