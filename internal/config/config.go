// Package config loads twinly's settings from an optional YAML file and
// TWINLY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/twinly/internal/llm"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Log        LogConfig        `yaml:"log"`
	Generation GenerationConfig `yaml:"generation"`
	LLM        llm.Config       `yaml:"llm"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// RatePerMinute caps requests per identity. Zero disables limiting.
	RatePerMinute int `yaml:"rate_per_minute" validate:"gte=0"`
	Burst         int `yaml:"burst" validate:"gte=0"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=sqlite redis memory"`

	// DBPath is the SQLite file. Empty resolves to the XDG data dir.
	DBPath string `yaml:"db_path"`

	RedisAddr   string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl" validate:"gte=0"`

	// StatePrefix namespaces persona state keys inside the KV.
	StatePrefix string `yaml:"state_prefix"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Mode  string `yaml:"mode" validate:"oneof=dev prod"`
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// GenerationConfig tunes the prompts sent to the provider.
type GenerationConfig struct {
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8787",
			RatePerMinute:   60,
			Burst:           10,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:     BackendSQLite,
			RedisPrefix: "twinly",
			StatePrefix: "twin:",
		},
		Log: LogConfig{
			Mode:  "dev",
			Level: "info",
		},
		Generation: GenerationConfig{
			MaxTokens:   512,
			Temperature: 0.7,
		},
		LLM: llm.DefaultConfig(),
	}
}

var validate = validator.New()

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks struct constraints and the LLM provider settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.LLM.Validate()
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "TWINLY_ADDR")
	setString(&cfg.Store.Backend, "TWINLY_STORE")
	setString(&cfg.Store.DBPath, "TWINLY_DB")
	setString(&cfg.Store.RedisAddr, "TWINLY_REDIS_ADDR")
	setString(&cfg.Store.RedisPrefix, "TWINLY_REDIS_PREFIX")
	setString(&cfg.Log.Mode, "TWINLY_LOG_MODE")
	setString(&cfg.Log.Level, "TWINLY_LOG_LEVEL")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Server.RatePerMinute, "TWINLY_RATE_PER_MINUTE"),
		setInt(&cfg.Server.Burst, "TWINLY_BURST"),
	)

	llm.ApplyEnv(&cfg.LLM)
	return errors.Join(errs...)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = n
	return nil
}
