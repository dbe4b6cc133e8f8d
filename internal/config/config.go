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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Places      PlacesConfig      `yaml:"places" mapstructure:"places"`
	Foursquare  FoursquareConfig  `yaml:"foursquare" mapstructure:"foursquare"`
	Hunter      HunterConfig      `yaml:"hunter" mapstructure:"hunter"`
	NeverBounce NeverBounceConfig `yaml:"neverbounce" mapstructure:"neverbounce"`
	Registry    RegistryConfig    `yaml:"registry" mapstructure:"registry"`
	Sources     SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig     `yaml:"circuit" mapstructure:"circuit"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FoursquareConfig holds Foursquare Places API settings.
type FoursquareConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// HunterConfig holds Hunter.io API settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NeverBounceConfig holds NeverBounce API settings.
type NeverBounceConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RegistryConfig holds state business-registry API settings. Endpoints maps a
// lowercase two-letter state code to its search URL.
type RegistryConfig struct {
	Endpoints map[string]string `yaml:"endpoints" mapstructure:"endpoints"`
}

// SourceConfig holds per-source tunables: token-bucket rate, cost per call,
// and cache TTL for responses.
type SourceConfig struct {
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	CostPerCall   float64 `yaml:"cost_per_call" mapstructure:"cost_per_call"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheTTL returns the configured TTL as a duration.
func (s SourceConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLHours) * time.Hour
}

// Timeout returns the per-call timeout as a duration.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// SourcesConfig collects per-source tunables keyed by source name, plus the
// reliability ranking used to break merge conflicts.
type SourcesConfig struct {
	GooglePlaces  SourceConfig `yaml:"google_places" mapstructure:"google_places"`
	Foursquare    SourceConfig `yaml:"foursquare" mapstructure:"foursquare"`
	HunterIO      SourceConfig `yaml:"hunter_io" mapstructure:"hunter_io"`
	NeverBounce   SourceConfig `yaml:"neverbounce" mapstructure:"neverbounce"`
	StateRegistry SourceConfig `yaml:"state_registry" mapstructure:"state_registry"`

	// Reliability lists source names from most to least trusted; earlier
	// sources win field conflicts during merge.
	Reliability []string `yaml:"reliability" mapstructure:"reliability"`
}

// ScoringConfig holds the confidence weights (must sum to 100) and the
// pre-validation threshold.
type ScoringConfig struct {
	NameWeight            float64 `yaml:"name_weight" mapstructure:"name_weight"`
	AddressWeight         float64 `yaml:"address_weight" mapstructure:"address_weight"`
	PhoneWeight           float64 `yaml:"phone_weight" mapstructure:"phone_weight"`
	WebsiteWeight         float64 `yaml:"website_weight" mapstructure:"website_weight"`
	EmailWeight           float64 `yaml:"email_weight" mapstructure:"email_weight"`
	EmailVerifiedWeight   float64 `yaml:"email_verified_weight" mapstructure:"email_verified_weight"`
	RegistryWeight        float64 `yaml:"registry_weight" mapstructure:"registry_weight"`
	PreValidationMinScore float64 `yaml:"pre_validation_min_score" mapstructure:"pre_validation_min_score"`
}

// DiscoveryConfig configures orchestrator concurrency and rate-limit waits.
type DiscoveryConfig struct {
	MaxConcurrentSources    int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	MaxConcurrentCandidates int `yaml:"max_concurrent_candidates" mapstructure:"max_concurrent_candidates"`
	RateWaitMaxSecs         int `yaml:"rate_wait_max_secs" mapstructure:"rate_wait_max_secs"`
}

// RetryConfig configures adapter retry behavior.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-source circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the campaign submission API.
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

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadengine.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("foursquare.base_url", "https://api.foursquare.com/v3")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("neverbounce.base_url", "https://api.neverbounce.com/v4")

	v.SetDefault("sources.google_places.rate_per_sec", 10.0)
	v.SetDefault("sources.google_places.burst", 10)
	v.SetDefault("sources.google_places.cost_per_call", 0.032)
	v.SetDefault("sources.google_places.cache_ttl_hours", 24)
	v.SetDefault("sources.google_places.timeout_secs", 10)

	v.SetDefault("sources.foursquare.rate_per_sec", 2.0)
	v.SetDefault("sources.foursquare.burst", 2)
	v.SetDefault("sources.foursquare.cost_per_call", 0.0)
	v.SetDefault("sources.foursquare.cache_ttl_hours", 24)
	v.SetDefault("sources.foursquare.timeout_secs", 10)

	v.SetDefault("sources.hunter_io.rate_per_sec", 1.0)
	v.SetDefault("sources.hunter_io.burst", 1)
	v.SetDefault("sources.hunter_io.cost_per_call", 0.04)
	v.SetDefault("sources.hunter_io.cache_ttl_hours", 168)
	v.SetDefault("sources.hunter_io.timeout_secs", 15)

	v.SetDefault("sources.neverbounce.rate_per_sec", 1.0)
	v.SetDefault("sources.neverbounce.burst", 2)
	v.SetDefault("sources.neverbounce.cost_per_call", 0.008)
	v.SetDefault("sources.neverbounce.cache_ttl_hours", 720)
	v.SetDefault("sources.neverbounce.timeout_secs", 15)

	v.SetDefault("sources.state_registry.rate_per_sec", 2.0)
	v.SetDefault("sources.state_registry.burst", 2)
	v.SetDefault("sources.state_registry.cost_per_call", 0.0)
	v.SetDefault("sources.state_registry.cache_ttl_hours", 720)
	v.SetDefault("sources.state_registry.timeout_secs", 10)

	v.SetDefault("sources.reliability", []string{"google_places", "state_registry", "foursquare"})

	v.SetDefault("scoring.name_weight", 10.0)
	v.SetDefault("scoring.address_weight", 15.0)
	v.SetDefault("scoring.phone_weight", 15.0)
	v.SetDefault("scoring.website_weight", 20.0)
	v.SetDefault("scoring.email_weight", 10.0)
	v.SetDefault("scoring.email_verified_weight", 15.0)
	v.SetDefault("scoring.registry_weight", 15.0)
	v.SetDefault("scoring.pre_validation_min_score", 25.0)

	v.SetDefault("discovery.max_concurrent_sources", 4)
	v.SetDefault("discovery.max_concurrent_candidates", 5)
	v.SetDefault("discovery.rate_wait_max_secs", 5)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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
