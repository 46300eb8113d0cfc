// Package config loads the server configuration from a TOML file with
// REACTOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes environment overrides, e.g. REACTOR_SERVER_PORT
const EnvPrefix = "REACTOR"

// ErrInvalid wraps validation failures
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `config:"server"`
	Pool    PoolConfig    `config:"pool"`
	Log     LogConfig     `config:"log"`
	Store   StoreConfig   `config:"store"`
	Metrics MetricsConfig `config:"metrics"`
}

// ServerConfig controls the listener and the reactor
type ServerConfig struct {
	Port       int    `config:"port" validate:"min=1024,max=65535"`
	TrigMode   int    `config:"trig_mode" validate:"min=0,max=3"`
	TimeoutMs  int    `config:"timeout_ms" validate:"min=0"`
	OpenLinger bool   `config:"open_linger"`
	RootDir    string `config:"root_dir" validate:"required"`
	MaxConns   int    `config:"max_conns" validate:"min=1"`
	RateLimit  int    `config:"route_rate_limit" validate:"min=0"`
}

// PoolConfig sizes the worker, connection and SQL pools
type PoolConfig struct {
	ThreadPoolSize int  `config:"thread_pool_size" validate:"min=1"`
	InitCapacity   int  `config:"init_capacity" validate:"min=1"`
	Increment      int  `config:"increment" validate:"min=1"`
	IsLock         bool `config:"is_lock"`
	SQLPoolSize    int  `config:"sql_pool_size" validate:"min=1"`
	GOGC           int  `config:"gogc" validate:"min=0"`
	MemoryLimitMB  int  `config:"memory_limit_mb" validate:"min=0"`
}

// LogConfig controls logging output and rotation
type LogConfig struct {
	Enabled    bool   `config:"enabled"`
	Path       string `config:"path"`
	Level      string `config:"level" validate:"oneof=debug info warn error"`
	MaxSizeMB  int    `config:"max_size_mb" validate:"min=1"`
	MaxBackups int    `config:"max_backups" validate:"min=0"`
	Async      bool   `config:"async"`
	Format     string `config:"format" validate:"oneof=json console"`
}

// StoreConfig selects the credential store
type StoreConfig struct {
	Driver         string `config:"driver" validate:"oneof=memory mysql"`
	DSN            string `config:"dsn" validate:"required_if=Driver mysql"`
	QueryTimeoutMs int    `config:"query_timeout_ms" validate:"min=1"`
	BcryptCost     int    `config:"bcrypt_cost" validate:"min=4,max=31"`
}

// MetricsConfig controls the admin listener; an empty Addr disables it.
// Monitor turns per-route latency tracking on.
type MetricsConfig struct {
	Addr    string `config:"addr"`
	Monitor bool   `config:"monitor"`
}

// Default returns the configuration used for keys absent from file and env
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      1316,
			TrigMode:  3,
			TimeoutMs: 60000,
			RootDir:   "./resources",
			MaxConns:  65536,
		},
		Pool: PoolConfig{
			ThreadPoolSize: 6,
			InitCapacity:   1024,
			Increment:      128,
			SQLPoolSize:    12,
		},
		Log: LogConfig{
			Enabled:    true,
			Path:       "./log/server.log",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			Format:     "json",
		},
		Metrics: MetricsConfig{
			Monitor: true,
		},
		Store: StoreConfig{
			Driver:         "memory",
			QueryTimeoutMs: 3000,
			BcryptCost:     10,
		},
	}
}

// Timeout returns the idle timeout as a duration
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// QueryTimeout returns the store query timeout as a duration
func (s StoreConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMs) * time.Millisecond
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Load reads filename, applies environment overrides and validates the
// result. The returned Manager keeps the merged values for watching.
func Load(filename string) (*Config, *Manager, error) {
	m := NewManager()
	if err := m.LoadFromTOML(filename); err != nil {
		return nil, nil, err
	}
	m.LoadFromEnv(EnvPrefix)

	cfg, err := m.Config()
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

// Config builds a validated Config from the manager's current values
func (m *Manager) Config() (*Config, error) {
	cfg := Default()
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
