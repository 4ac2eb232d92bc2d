package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "GIN_MODE", "STORAGE_DRIVER", "SQLITE_PATH", "POSTGRES_DSN",
	"REDIS_ADDR", "REDIS_PASSWORD", "LOG_LEVEL", "LOG_FORMAT", "CONFIG_PATH",
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auctions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, ":8080", cfg.Server.Addr())
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Equal(t, 5*time.Second, cfg.Bidding.TxTimeout)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 9090
  mode: debug
storage:
  driver: sqlite
  sqlite_path: /tmp/auctions-test.db
  busy_timeout: 2s
redis:
  addr: localhost:6379
  prefix: test
rate_limit:
  enabled: true
  limit: 5
  window: 500ms
bidding:
  max_amount: "99999.99"
  tx_timeout: 3s
  audit_on_start: false
  audit_workers: 8
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.Mode)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "/tmp/auctions-test.db", cfg.Storage.SQLitePath)
	require.Equal(t, 2*time.Second, cfg.Storage.BusyTimeout)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "test", cfg.Redis.Prefix)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 5, cfg.RateLimit.Limit)
	require.Equal(t, 500*time.Millisecond, cfg.RateLimit.Window)
	require.Equal(t, 3*time.Second, cfg.Bidding.TxTimeout)
	require.False(t, cfg.Bidding.AuditOnStart)
	require.Equal(t, 8, cfg.Bidding.AuditWorkers)
	require.Equal(t, "text", cfg.Logging.Format)

	max, err := cfg.MaxAmount()
	require.NoError(t, err)
	require.Equal(t, "99999.99", max.StringFixed(2))
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
storage:
  driver: sqlite
logging:
  level: info
`)
	t.Setenv("PORT", "7000")
	t.Setenv("GIN_MODE", "test")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/auctions")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Server.Port)
	require.Equal(t, "test", cfg.Server.Mode)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, "postgres://localhost/auctions", cfg.Storage.PostgresDSN)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "secret", cfg.Redis.Password)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, "server:\n  port: 8181\n"))

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 8181, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing_file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
	t.Run("bad_yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unclosed"))
		require.Error(t, err)
	})
	t.Run("bad_duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "bidding:\n  tx_timeout: soon\n"))
		require.Error(t, err)
	})
	t.Run("bad_port_env", func(t *testing.T) {
		t.Setenv("PORT", "http")
		_, err := Load("")
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown_driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "unknown storage.driver"},
		{name: "sqlite_without_path", mutate: func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.SQLitePath = "" }, wantErr: "sqlite_path"},
		{name: "postgres_without_dsn", mutate: func(c *Config) { c.Storage.Driver = DriverPostgres }, wantErr: "postgres_dsn"},
		{name: "unknown_mode", mutate: func(c *Config) { c.Server.Mode = "prod" }, wantErr: "server.mode"},
		{name: "port_out_of_range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "rate_limit_without_redis", mutate: func(c *Config) { c.RateLimit.Enabled = true }, wantErr: "redis.addr"},
		{name: "rate_limit_zero_limit", mutate: func(c *Config) {
			c.RateLimit.Enabled = true
			c.Redis.Addr = "localhost:6379"
			c.RateLimit.Limit = 0
		}, wantErr: "rate_limit.limit"},
		{name: "rate_limit_short_window", mutate: func(c *Config) {
			c.RateLimit.Enabled = true
			c.Redis.Addr = "localhost:6379"
			c.RateLimit.Window = time.Microsecond
		}, wantErr: "rate_limit.window"},
		{name: "disabled_rate_limit_ignores_limit", mutate: func(c *Config) { c.RateLimit.Limit = 0 }},
		{name: "zero_tx_timeout", mutate: func(c *Config) { c.Bidding.TxTimeout = 0 }, wantErr: "tx_timeout"},
		{name: "negative_workers", mutate: func(c *Config) { c.Bidding.AuditWorkers = -1 }, wantErr: "audit_workers"},
		{name: "bad_max_amount", mutate: func(c *Config) { c.Bidding.MaxAmount = "lots" }, wantErr: "max_amount"},
		{name: "negative_max_amount", mutate: func(c *Config) { c.Bidding.MaxAmount = "-1" }, wantErr: "max_amount"},
		{name: "huge_max_amount", mutate: func(c *Config) { c.Bidding.MaxAmount = "1e80000000" }, wantErr: "max_amount"},
		{name: "fractional_cent_max_amount", mutate: func(c *Config) { c.Bidding.MaxAmount = "10.001" }, wantErr: "max_amount"},
		{name: "zero_max_amount", mutate: func(c *Config) { c.Bidding.MaxAmount = "0" }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
