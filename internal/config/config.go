package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/policy"
	"github.com/gandretiraghu/gptr-road-safety/internal/logging"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
)

// Config is the full runtime configuration of the API server and worker.
type Config struct {
	ServerPort int    `toml:"port" json:"port" yaml:"port"`
	GinMode    string `toml:"gin_mode" json:"gin_mode" yaml:"gin_mode"`

	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Store     StoreConfig     `toml:"store" json:"store" yaml:"store"`
	Oracle    OracleConfig    `toml:"oracle" json:"oracle" yaml:"oracle"`
	Window    WindowConfig    `toml:"window" json:"window" yaml:"window"`
	RateLimit RateLimitConfig `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Feeds     FeedConfig      `toml:"feeds" json:"feeds" yaml:"feeds"`
	Queue     QueueConfig     `toml:"queue" json:"queue" yaml:"queue"`
}

type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"` // text | json
}

type StoreConfig struct {
	Driver   string `toml:"driver" json:"driver" yaml:"driver"` // memory | sqlite | mongo
	DSN      string `toml:"dsn" json:"dsn" yaml:"dsn"`
	Database string `toml:"database" json:"database" yaml:"database"`
}

type OracleConfig struct {
	BaseURL    string `toml:"base_url" json:"base_url" yaml:"base_url"`
	APIKey     string `toml:"api_key" json:"api_key" yaml:"api_key"`
	TimeoutSec int    `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// WindowConfig is the daylight submission window in device local hours.
type WindowConfig struct {
	OpenHour  int    `toml:"open_hour" json:"open_hour" yaml:"open_hour"`
	CloseHour int    `toml:"close_hour" json:"close_hour" yaml:"close_hour"`
	Timezone  string `toml:"timezone" json:"timezone" yaml:"timezone"` // used when the device sends no time
}

type RateLimitConfig struct {
	DeviceRequests  int `toml:"device_requests" json:"device_requests" yaml:"device_requests"`
	DeviceWindowSec int `toml:"device_window_sec" json:"device_window_sec" yaml:"device_window_sec"`
	IPRequests      int `toml:"ip_requests" json:"ip_requests" yaml:"ip_requests"`
	IPWindowSec     int `toml:"ip_window_sec" json:"ip_window_sec" yaml:"ip_window_sec"`
}

type FeedConfig struct {
	NavigationKey string `toml:"navigation_key" json:"navigation_key" yaml:"navigation_key"`
	CivicKey      string `toml:"civic_key" json:"civic_key" yaml:"civic_key"`
}

type QueueConfig struct {
	RabbitMQURL     string `toml:"rabbitmq_url" json:"rabbitmq_url" yaml:"rabbitmq_url"`
	SubmissionQueue string `toml:"submission_queue" json:"submission_queue" yaml:"submission_queue"`
	ResultQueue     string `toml:"result_queue" json:"result_queue" yaml:"result_queue"`
	Workers         int    `toml:"workers" json:"workers" yaml:"workers"`
	Prefetch        int    `toml:"prefetch" json:"prefetch" yaml:"prefetch"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ServerPort: 8081,
		GinMode:    "debug",
		Logging:    LoggingConfig{Level: "info", Format: logging.FormatText},
		Store:      StoreConfig{Driver: store.DriverSQLite, DSN: "data/gptr.db", Database: "gptr"},
		Oracle:     OracleConfig{TimeoutSec: 45},
		Window:     WindowConfig{OpenHour: policy.DefaultOpenHour, CloseHour: policy.DefaultCloseHour, Timezone: "UTC"},
		RateLimit: RateLimitConfig{
			DeviceRequests:  20,
			DeviceWindowSec: 3600,
			IPRequests:      100,
			IPWindowSec:     900,
		},
		Queue: QueueConfig{
			SubmissionQueue: "submission_queue",
			ResultQueue:     "result_queue",
			Workers:         10,
			Prefetch:        10,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional file named
// by GPTR_CONFIG and environment overrides, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("GPTR_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile merges a TOML, YAML or JSON file over cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnvOverrides copies set environment variables over cfg.
func (c *Config) ApplyEnvOverrides() error {
	var errs []error
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("PORT", &c.ServerPort)
	setString("GIN_MODE", &c.GinMode)

	setString("GPTR_LOG_LEVEL", &c.Logging.Level)
	setString("GPTR_LOG_FORMAT", &c.Logging.Format)

	setString("GPTR_STORE_DRIVER", &c.Store.Driver)
	setString("GPTR_STORE_DSN", &c.Store.DSN)
	setString("GPTR_MONGO_DATABASE", &c.Store.Database)
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Store.Driver = store.DriverMongo
		c.Store.DSN = v
	}

	setString("GPTR_ORACLE_URL", &c.Oracle.BaseURL)
	setString("GPTR_ORACLE_API_KEY", &c.Oracle.APIKey)
	setInt("GPTR_ORACLE_TIMEOUT_SEC", &c.Oracle.TimeoutSec)

	setInt("GPTR_WINDOW_OPEN_HOUR", &c.Window.OpenHour)
	setInt("GPTR_WINDOW_CLOSE_HOUR", &c.Window.CloseHour)
	setString("GPTR_TIMEZONE", &c.Window.Timezone)

	setInt("GPTR_DEVICE_RATE_LIMIT", &c.RateLimit.DeviceRequests)
	setInt("GPTR_DEVICE_RATE_WINDOW_SEC", &c.RateLimit.DeviceWindowSec)
	setInt("GPTR_IP_RATE_LIMIT", &c.RateLimit.IPRequests)
	setInt("GPTR_IP_RATE_WINDOW_SEC", &c.RateLimit.IPWindowSec)

	setString("GPTR_NAV_API_KEY", &c.Feeds.NavigationKey)
	setString("GPTR_CIVIC_API_KEY", &c.Feeds.CivicKey)

	setString("RABBITMQ_URL", &c.Queue.RabbitMQURL)
	setString("GPTR_SUBMISSION_QUEUE", &c.Queue.SubmissionQueue)
	setString("GPTR_RESULT_QUEUE", &c.Queue.ResultQueue)
	setInt("GPTR_WORKERS", &c.Queue.Workers)

	return errors.Join(errs...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.ServerPort))
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("gin_mode must be debug, release or test, got %q", c.GinMode))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Logging.Format))
	}
	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverSQLite, store.DriverMongo:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store driver %s needs a dsn", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Oracle.TimeoutSec <= 0 {
		errs = append(errs, errors.New("oracle timeout must be positive"))
	}
	if _, err := c.SubmissionWindow(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.DeviceRequests < 0 || c.RateLimit.IPRequests < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.RateLimit.DeviceRequests > 0 && c.RateLimit.DeviceWindowSec <= 0 {
		errs = append(errs, errors.New("device rate window must be positive"))
	}
	if c.RateLimit.IPRequests > 0 && c.RateLimit.IPWindowSec <= 0 {
		errs = append(errs, errors.New("ip rate window must be positive"))
	}
	if c.Queue.RabbitMQURL != "" {
		if c.Queue.SubmissionQueue == "" || c.Queue.ResultQueue == "" {
			errs = append(errs, errors.New("queue names are required when rabbitmq_url is set"))
		}
		if c.Queue.Workers < 1 {
			errs = append(errs, errors.New("queue workers must be at least 1"))
		}
	}
	return errors.Join(errs...)
}

// SubmissionWindow resolves the daylight window.
func (c *Config) SubmissionWindow() (policy.Window, error) {
	return policy.NewWindow(c.Window.OpenHour, c.Window.CloseHour, c.Window.Timezone)
}

// OracleTimeout is the per-call deadline for the forensics oracle.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSec) * time.Second
}

// DeviceLimiter limits submissions per device. Zero requests disables it.
func (c *Config) DeviceLimiter() policy.RateLimiter {
	return policy.NewKeyedLimiter(c.RateLimit.DeviceRequests, time.Duration(c.RateLimit.DeviceWindowSec)*time.Second)
}

// IPLimiter limits HTTP requests per client address. Zero requests disables it.
func (c *Config) IPLimiter() policy.RateLimiter {
	return policy.NewKeyedLimiter(c.RateLimit.IPRequests, time.Duration(c.RateLimit.IPWindowSec)*time.Second)
}

// StoreOptions maps the store section onto store.Options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{Driver: c.Store.Driver, DSN: c.Store.DSN, Database: c.Store.Database}
}

// LogValue keeps secrets out of startup logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.ServerPort),
		slog.String("gin_mode", c.GinMode),
		slog.String("store_driver", c.Store.Driver),
		slog.Bool("oracle_configured", c.Oracle.BaseURL != ""),
		slog.Bool("queue_configured", c.Queue.RabbitMQURL != ""),
		slog.String("window", fmt.Sprintf("%02d-%02d %s", c.Window.OpenHour, c.Window.CloseHour, c.Window.Timezone)),
	)
}
