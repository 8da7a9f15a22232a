// Package config handles dashboard configuration from a YAML file, .env and
// environment variables, applied in that order
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/mldash/dashapi"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "MLDASH_"

// Config holds all application configuration
type Config struct {
	Port     string `env:"PORT" yaml:"port"`
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level"`

	// API is passed to dashapi.New; its variables are MLDASH_BASE_URL etc.
	API dashapi.Config `yaml:"api"`

	Queue QueueConfig `yaml:"queue"`
}

// QueueConfig holds the background job settings. Jobs are disabled when
// RedisAddr is empty and pipeline actions then run inline.
type QueueConfig struct {
	RedisAddr   string `env:"REDIS_ADDR" yaml:"redis_addr"`
	Concurrency int    `env:"WORKER_CONCURRENCY" yaml:"concurrency"`
}

// Enabled reports whether jobs go through the queue
func (q QueueConfig) Enabled() bool {
	return q.RedisAddr != ""
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		API:      dashapi.DefaultConfig(),
		Queue: QueueConfig{
			Concurrency: 4,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; when it is
// empty only defaults, .env and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	return nil
}

// Logger builds the process logger at the configured level
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
