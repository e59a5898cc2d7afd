// Package config loads the handler chain coordinator's own tunables
// (store driver selection, replay listener intervals), following the
// gateway's internal/config.Load pattern: built-in defaults, overlaid
// by an optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects and parametrizes a replaystore.Store driver.
type StoreConfig struct {
	// Driver is one of "memory", "postgres", "redis".
	Driver string `yaml:"driver" json:"driver"`

	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
}

// PostgresConfig configures the pgstore driver.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	MigrationPath   string        `yaml:"migration_path" json:"migration_path"`
}

// RedisConfig configures the redisstore driver.
type RedisConfig struct {
	Address   string        `yaml:"address" json:"address"`
	Password  string        `yaml:"password" json:"password"`
	Database  int           `yaml:"database" json:"database"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
}

// ReplayListenerConfig configures a chain's replay listener.
type ReplayListenerConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	PollingInterval time.Duration `yaml:"polling_interval" json:"polling_interval"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	RetryInterval   time.Duration `yaml:"retry_interval" json:"retry_interval"`
	DeadLetterStore StoreConfig   `yaml:"dead_letter_store" json:"dead_letter_store"`
	ReplayStore     *StoreConfig  `yaml:"replay_store" json:"replay_store"`
}

// Config is the coordinator's top-level configuration.
type Config struct {
	LogLevel      string                `yaml:"log_level" json:"log_level"`
	FailureStore  StoreConfig           `yaml:"failure_store" json:"failure_store"`
	ReplayListener ReplayListenerConfig `yaml:"replay_listener" json:"replay_listener"`
}

// Default returns the coordinator's built-in defaults: an in-memory
// failure store and a disabled replay listener.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		FailureStore: StoreConfig{Driver: "memory"},
		ReplayListener: ReplayListenerConfig{
			Enabled:         false,
			PollingInterval: time.Second,
			MaxRetries:      3,
			RetryInterval:   2 * time.Second,
			DeadLetterStore: StoreConfig{Driver: "memory"},
		},
	}
}

// Load builds a Config from Default(), overlaid by configFile (if
// non-empty) and then by HANDLERCHAIN_*-prefixed environment variables.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", filename)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if level := os.Getenv("HANDLERCHAIN_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if driver := os.Getenv("HANDLERCHAIN_FAILURE_STORE_DRIVER"); driver != "" {
		cfg.FailureStore.Driver = driver
	}
	if dsn := os.Getenv("HANDLERCHAIN_POSTGRES_DSN"); dsn != "" {
		cfg.FailureStore.Postgres.DSN = dsn
	}
	if addrs := os.Getenv("HANDLERCHAIN_REDIS_ADDRESS"); addrs != "" {
		cfg.FailureStore.Redis.Address = strings.TrimSpace(addrs)
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.FailureStore.Driver {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported failure store driver: %q", cfg.FailureStore.Driver)
	}
	if cfg.ReplayListener.Enabled && cfg.ReplayListener.PollingInterval <= 0 {
		return fmt.Errorf("replay_listener.polling_interval must be positive when enabled")
	}
	return nil
}
