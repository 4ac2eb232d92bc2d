package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"auctions/internal/money"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level configuration of the auction server.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Redis     Redis     `yaml:"redis"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Bidding   Bidding   `yaml:"bidding"`
	Logging   Logging   `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: debug, release or test
}

// Storage selects the listing and bid store.
type Storage struct {
	Driver      string        `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// Redis is optional. An empty Addr disables event publishing and rate limiting.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// RateLimit throttles bid submission per client IP. It needs Redis.
type RateLimit struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

// Bidding tunes the bidding service.
type Bidding struct {
	MaxAmount    string        `yaml:"max_amount"` // empty or zero means unbounded
	TxTimeout    time.Duration `yaml:"tx_timeout"`
	AuditOnStart bool          `yaml:"audit_on_start"`
	AuditWorkers int           `yaml:"audit_workers"`
}

// Logging selects the logrus level and output format.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  Server{Port: 8080, Mode: "release"},
		Storage: Storage{Driver: DriverMemory, SQLitePath: "auctions.db", BusyTimeout: 5 * time.Second},
		Redis:   Redis{Prefix: "auctions"},
		RateLimit: RateLimit{
			Limit:  20,
			Window: time.Second,
		},
		Bidding: Bidding{
			TxTimeout:    5 * time.Second,
			AuditOnStart: true,
			AuditWorkers: 4,
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by CONFIG_PATH, if any.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
		if err != nil {
			return fmt.Errorf("config: PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.Server.Mode = v
	}

	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: unknown server.mode %q", c.Server.Mode)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.BusyTimeout < 0 {
		return errors.New("config: storage.busy_timeout must not be negative")
	}

	if c.RateLimit.Enabled {
		if c.Redis.Addr == "" {
			return errors.New("config: rate_limit requires redis.addr")
		}
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("config: rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
		}
		if c.RateLimit.Window < time.Millisecond {
			return fmt.Errorf("config: rate_limit.window %s too short", c.RateLimit.Window)
		}
	}

	if c.Bidding.TxTimeout <= 0 {
		return fmt.Errorf("config: bidding.tx_timeout must be positive, got %s", c.Bidding.TxTimeout)
	}
	if c.Bidding.AuditWorkers < 0 {
		return fmt.Errorf("config: bidding.audit_workers must not be negative, got %d", c.Bidding.AuditWorkers)
	}
	if _, err := c.MaxAmount(); err != nil {
		return err
	}
	return nil
}

// MaxAmount parses bidding.max_amount. Zero means no upper bound; any other
// value must itself be a valid amount.
func (c *Config) MaxAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Bidding.MaxAmount)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: bidding.max_amount: %w", err)
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	if err := money.Validate(amount, decimal.Zero); err != nil {
		return decimal.Zero, fmt.Errorf("config: bidding.max_amount %q: %w", raw, err)
	}
	return amount, nil
}

// Addr returns the listen address for gin.
func (s Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
