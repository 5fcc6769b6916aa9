// Package config loads process configuration from the environment, in
// the teacher's own style: caarlos0/env for parsing, go-playground/validator
// for the resulting struct.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is shared by cmd/schedulerd, cmd/workerd, and cmd/seed. Not every
// field is relevant to every binary; each main reads only what it needs.
type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	// StoreBackend selects the internal/store implementation: "memory",
	// "postgres", or "redis".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory" validate:"required,oneof=memory postgres redis"`
	DatabaseURL  string `env:"DATABASE_URL" validate:"required_if=StoreBackend postgres"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`

	SchedulerID         string `env:"SCHEDULER_ID"`
	WorkerID            string `env:"WORKER_ID"`
	MaxConcurrentJobs   int    `env:"MAX_CONCURRENT_JOBS" envDefault:"10" validate:"min=1,max=10000"`
	LockExpirationSec   int    `env:"LOCK_EXPIRATION_SEC" envDefault:"30" validate:"min=1,max=3600"`
	CoLocatedWorker     bool   `env:"CO_LOCATED_WORKER" envDefault:"false"`

	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LockExpirationDelay converts LockExpirationSec to a time.Duration.
func (c *Config) LockExpirationDelay() time.Duration {
	return time.Duration(c.LockExpirationSec) * time.Second
}
