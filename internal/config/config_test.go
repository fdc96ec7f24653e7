package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "zones.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 200, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 400, cfg.Server.RateBurst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.002, cfg.Surge.Eps, 1e-9)
	assert.Equal(t, 5, cfg.Surge.MinPoints)
	assert.Equal(t, 5, cfg.Surge.MinOrders)
	assert.Equal(t, 50000, cfg.Surge.MaxOrders)
	assert.Equal(t, 0, cfg.Surge.WindowMinutes)
	assert.InDelta(t, 1.5, cfg.Surge.Multiplier, 1e-9)
	assert.Equal(t, "city_boundary", cfg.Anomaly.BoundaryCategory)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 60, cfg.Monitoring.LookbackMinutes)
	assert.Equal(t, 20, cfg.Monitoring.HotspotThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/zones-test.db
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins:
    - https://dispatch.example.com
surge:
  eps: 0.003
  window_minutes: 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/zones-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dispatch.example.com"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.003, cfg.Surge.Eps, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Surge.Window())
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Surge.MinPoints)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ZONES_STORE_DRIVER", "postgres")
	t.Setenv("ZONES_LOG_LEVEL", "warn")
	t.Setenv("ZONES_STORE_DATABASE_URL", "postgres://localhost/zones")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "postgres://localhost/zones", cfg.Store.DatabaseURL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ZONES_SERVER_PORT", "3000")
	t.Setenv("ZONES_SURGE_MULTIPLIER", "2.0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 2.0, cfg.Surge.Multiplier, 1e-9)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the shipped defaults for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/zones"
	cfg.Server.Port = 8080
	cfg.Server.RateLimit = 200
	cfg.Server.RateBurst = 400
	cfg.Surge = SurgeConfig{Eps: 0.002, MinPoints: 5, MinOrders: 5, MaxOrders: 50000, Multiplier: 1.5}
	cfg.Anomaly.BoundaryCategory = "city_boundary"
	cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoffMS: 100, MaxBackoffMS: 2000}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
	assert.NoError(t, validDefaults().Validate("cli"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Server.Port = 0
	cfg.Surge.Eps = 0
	cfg.Surge.Multiplier = 0
	cfg.Anomaly.BoundaryCategory = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "server.port must be between")
	assert.Contains(t, err.Error(), "eps must be positive")
	assert.Contains(t, err.Error(), "surge.multiplier must be > 0")
	assert.Contains(t, err.Error(), "anomaly.boundary_category is required")
}

func TestValidate_MonitoringLookback(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_minutes")

	cfg.Monitoring.LookbackMinutes = 30
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_PortIgnoredOutsideServe(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = ""
	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.sqlite_path is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestEngineConfig(t *testing.T) {
	cfg := validDefaults()
	cfg.Surge.WindowMinutes = 15

	ec := cfg.Engine()
	assert.Equal(t, 15*time.Minute, ec.Window)
	assert.Equal(t, 50000, ec.MaxOrders)
	assert.Equal(t, 5, ec.Surge.MinInput)
	assert.Equal(t, 50000, ec.Surge.MaxInput)
	assert.InDelta(t, 1.5, ec.Multiplier, 1e-9)
	assert.Equal(t, "city_boundary", ec.BoundaryCategory)
}

func TestRetryPolicy(t *testing.T) {
	p := RetryConfig{MaxAttempts: 4, InitialBackoffMS: 50, MaxBackoffMS: 500}.Policy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 500*time.Millisecond, p.MaxBackoff)

	d := RetryConfig{}.Policy()
	assert.Equal(t, 3, d.MaxAttempts)
}

func TestBreakerConfig(t *testing.T) {
	bc := BreakerConfig{FailureThreshold: 7, ResetTimeoutSecs: 30}.Breaker(nil, nil)
	assert.Equal(t, 7, bc.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.ResetTimeout)
}
