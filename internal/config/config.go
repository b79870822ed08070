// Package config loads procflow settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procflow/internal/store"
)

// Environment variables that override file values.
const (
	EnvDBDriver = "PROCFLOW_DB_DRIVER"
	EnvDBDSN    = "PROCFLOW_DB_DSN"
	EnvHTTPAddr = "PROCFLOW_HTTP_ADDR"
	EnvLogLevel = "PROCFLOW_LOG_LEVEL"
)

// Config is the complete runtime configuration.
type Config struct {
	Datasource  Datasource  `yaml:"datasource"`
	Engine      Engine      `yaml:"engine"`
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
	Definitions Definitions `yaml:"definitions"`
}

// Datasource selects the storage backend.
type Datasource struct {
	Driver string           `yaml:"driver"`
	DSN    string           `yaml:"dsn"`
	Pool   store.PoolConfig `yaml:"pool"`
}

// Engine holds execution limits.
type Engine struct {
	MaxSteps    int    `yaml:"max_steps"`
	IDGenerator string `yaml:"id_generator"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Definitions points at process files deployed on startup.
type Definitions struct {
	Dir string `yaml:"dir"`
}

// IDGeneratorUUID selects the UUIDv7 generator, the only one available.
const IDGeneratorUUID = "uuid"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Datasource: Datasource{
			Driver: string(store.DriverSQLite),
			DSN:    "procflow.db",
			Pool:   store.DefaultPoolConfig(),
		},
		Engine: Engine{
			MaxSteps:    1000,
			IDGenerator: IDGeneratorUUID,
		},
		HTTP: HTTP{Addr: ":8080"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Fields absent from data keep their
// current values. Unknown fields are rejected.
func Parse(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment via lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDBDriver); ok && v != "" {
		c.Datasource.Driver = v
	}
	if v, ok := lookup(EnvDBDSN); ok && v != "" {
		c.Datasource.DSN = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch store.Driver(c.Datasource.Driver) {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("datasource.driver: unsupported driver %q", c.Datasource.Driver)
	}
	if c.Datasource.DSN == "" {
		return errors.New("datasource.dsn: required")
	}

	pool := c.Datasource.Pool
	if pool.MaxActive < 0 {
		return fmt.Errorf("datasource.pool.max_active: must not be negative, got %d", pool.MaxActive)
	}
	if pool.MaxIdle < 0 {
		return fmt.Errorf("datasource.pool.max_idle: must not be negative, got %d", pool.MaxIdle)
	}
	if pool.MaxActive > 0 && pool.MaxIdle > pool.MaxActive {
		return fmt.Errorf("datasource.pool.max_idle: %d exceeds max_active %d", pool.MaxIdle, pool.MaxActive)
	}
	if pool.CheckoutTimeout <= 0 {
		return fmt.Errorf("datasource.pool.checkout_timeout: must be positive, got %s", pool.CheckoutTimeout)
	}
	if pool.WaitTimeout <= 0 {
		return fmt.Errorf("datasource.pool.wait_timeout: must be positive, got %s", pool.WaitTimeout)
	}

	if c.Engine.IDGenerator != "" && c.Engine.IDGenerator != IDGeneratorUUID {
		return fmt.Errorf("engine.id_generator: unsupported generator %q", c.Engine.IDGenerator)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}
	return nil
}

// StoreConfig converts the datasource section for store.Open.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Driver: store.Driver(c.Datasource.Driver),
		DSN:    c.Datasource.DSN,
		Pool:   c.Datasource.Pool,
	}
}

// LockTimeout is how long an advance cycle waits for its instance lock.
// It follows the pool wait timeout.
func (c Config) LockTimeout() time.Duration {
	return c.Datasource.Pool.WaitTimeout
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// NewLogger builds the slog logger described by the log section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
