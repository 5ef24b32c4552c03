// Package config loads application configuration from config.yaml and
// LEADFLOW_* environment variables, with sane defaults for everything
// that is not a credential.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Telephony TelephonyConfig `yaml:"telephony" mapstructure:"telephony"`
	Calendar  CalendarConfig  `yaml:"calendar" mapstructure:"calendar"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DiscoveryConfig configures the search producers.
type DiscoveryConfig struct {
	OSMUserAgent        string  `yaml:"osm_user_agent" mapstructure:"osm_user_agent"`
	OSMRateLimit        float64 `yaml:"osm_rate_limit" mapstructure:"osm_rate_limit"`
	FoursquareKey       string  `yaml:"foursquare_key" mapstructure:"foursquare_key"`
	FoursquareRateLimit float64 `yaml:"foursquare_rate_limit" mapstructure:"foursquare_rate_limit"`
	RadiusMeters        int     `yaml:"radius_meters" mapstructure:"radius_meters"`
	Limit               int     `yaml:"limit" mapstructure:"limit"`
}

// IngestConfig configures write verification and lead retrieval.
type IngestConfig struct {
	VerifyIntervalSecs int `yaml:"verify_interval_secs" mapstructure:"verify_interval_secs"`
	VerifyMaxWaitSecs  int `yaml:"verify_max_wait_secs" mapstructure:"verify_max_wait_secs"`
	RetrieveAttempts   int `yaml:"retrieve_attempts" mapstructure:"retrieve_attempts"`
	RetrieveTimeoutSec int `yaml:"retrieve_timeout_secs" mapstructure:"retrieve_timeout_secs"`
	RetrieveBackoffSec int `yaml:"retrieve_backoff_secs" mapstructure:"retrieve_backoff_secs"`
}

// PipelineConfig configures the per-lead outreach pipeline.
type PipelineConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
	LeadTimeoutSecs    int `yaml:"lead_timeout_secs" mapstructure:"lead_timeout_secs"`
	CallTimeoutSecs    int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxLeads           int `yaml:"max_leads" mapstructure:"max_leads"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// TelephonyConfig holds voice-agent API settings.
type TelephonyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CalendarConfig holds scheduling API settings.
type CalendarConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SMTPConfig holds outbound email settings.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
	SSL      bool   `yaml:"ssl" mapstructure:"ssl"`
}

// ServerConfig holds webhook server settings.
type ServerConfig struct {
	Port          int    `yaml:"port" mapstructure:"port"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and environment
// variables prefixed with LEADFLOW_.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadflow.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("discovery.osm_user_agent", "leadflow/1.0")
	v.SetDefault("discovery.osm_rate_limit", 1)
	v.SetDefault("discovery.foursquare_rate_limit", 10)
	v.SetDefault("discovery.limit", 50)
	v.SetDefault("ingest.verify_interval_secs", 1)
	v.SetDefault("ingest.verify_max_wait_secs", 60)
	v.SetDefault("ingest.retrieve_attempts", 5)
	v.SetDefault("ingest.retrieve_timeout_secs", 10)
	v.SetDefault("ingest.retrieve_backoff_secs", 2)
	v.SetDefault("pipeline.max_concurrent_leads", 4)
	v.SetDefault("pipeline.lead_timeout_secs", 600)
	v.SetDefault("pipeline.call_timeout_secs", 300)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

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

// InitLogger builds the global zap logger from the log config.
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
