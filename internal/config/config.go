package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/resilience"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Surge      SurgeConfig      `yaml:"surge" mapstructure:"surge"`
	Anomaly    AnomalyConfig    `yaml:"anomaly" mapstructure:"anomaly"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	RateLimit           float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst           int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs  int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SurgeConfig tunes order clustering.
type SurgeConfig struct {
	Eps           float64 `yaml:"eps" mapstructure:"eps"`
	MinPoints     int     `yaml:"min_points" mapstructure:"min_points"`
	MinOrders     int     `yaml:"min_orders" mapstructure:"min_orders"`
	MaxOrders     int     `yaml:"max_orders" mapstructure:"max_orders"`
	WindowMinutes int     `yaml:"window_minutes" mapstructure:"window_minutes"`
	Multiplier    float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// AnomalyConfig configures driver anomaly detection.
type AnomalyConfig struct {
	BoundaryCategory string `yaml:"boundary_category" mapstructure:"boundary_category"`
}

// RetryConfig configures store retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures the background geo-guard.
type MonitoringConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackMinutes   int    `yaml:"lookback_minutes" mapstructure:"lookback_minutes"`
	AnomalyThreshold  int    `yaml:"anomaly_threshold" mapstructure:"anomaly_threshold"`
	HotspotThreshold  int    `yaml:"hotspot_threshold" mapstructure:"hotspot_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "zones.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 200.0)
	v.SetDefault("server.rate_burst", 400)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 10)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("surge.eps", 0.002)
	v.SetDefault("surge.min_points", 5)
	v.SetDefault("surge.min_orders", 5)
	v.SetDefault("surge.max_orders", 50000)
	v.SetDefault("surge.window_minutes", 0)
	v.SetDefault("surge.multiplier", 1.5)
	v.SetDefault("anomaly.boundary_category", "city_boundary")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 10)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 60)
	v.SetDefault("monitoring.lookback_minutes", 60)
	v.SetDefault("monitoring.anomaly_threshold", 1)
	v.SetDefault("monitoring.hotspot_threshold", 20)

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

// Validate checks value ranges for the given mode ("serve" or "cli").
// Every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
			errs = append(errs, "server.rate_limit and server.rate_burst must be >= 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackMinutes <= 0 {
			errs = append(errs, "monitoring.lookback_minutes must be > 0 when monitoring is enabled")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if err := c.Surge.Params().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Surge.MinOrders < 0 || c.Surge.MaxOrders < 0 || c.Surge.WindowMinutes < 0 {
		errs = append(errs, "surge.min_orders, surge.max_orders and surge.window_minutes must be >= 0")
	}
	if c.Surge.Multiplier <= 0 {
		errs = append(errs, fmt.Sprintf("surge.multiplier must be > 0, got %g", c.Surge.Multiplier))
	}
	if c.Anomaly.BoundaryCategory == "" {
		errs = append(errs, "anomaly.boundary_category is required")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Params converts the surge section to detector parameters.
func (s SurgeConfig) Params() surge.Params {
	return surge.Params{
		Eps:       s.Eps,
		MinPoints: s.MinPoints,
		MinInput:  s.MinOrders,
		MaxInput:  s.MaxOrders,
	}
}

// Window is the clustering window; zero means every order.
func (s SurgeConfig) Window() time.Duration {
	return time.Duration(s.WindowMinutes) * time.Minute
}

// Engine builds the engine configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Surge:            c.Surge.Params(),
		Window:           c.Surge.Window(),
		MaxOrders:        c.Surge.MaxOrders,
		Multiplier:       c.Surge.Multiplier,
		BoundaryCategory: c.Anomaly.BoundaryCategory,
	}
}

// Policy converts the retry section to a resilience policy.
func (r RetryConfig) Policy() resilience.Policy {
	p := resilience.DefaultPolicy()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoffMS > 0 {
		p.InitialBackoff = time.Duration(r.InitialBackoffMS) * time.Millisecond
	}
	if r.MaxBackoffMS > 0 {
		p.MaxBackoff = time.Duration(r.MaxBackoffMS) * time.Millisecond
	}
	return p
}

// Breaker converts the breaker section, attaching a failure predicate.
func (b BreakerConfig) Breaker(isFailure func(error) bool, onChange func(from, to resilience.State)) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: b.FailureThreshold,
		ResetTimeout:     time.Duration(b.ResetTimeoutSecs) * time.Second,
		IsFailure:        isFailure,
		OnStateChange:    onChange,
	}
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
