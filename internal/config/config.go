// Package config loads the daemon configuration from RAWR_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Rate limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config defines all environment variables and the durations derived from
// them.
type Config struct {
	// Derived from the *_MS fields by normalize.
	CacheDefaultTTL    time.Duration `env:"-"`
	CacheSweepInterval time.Duration `env:"-"`
	RateLimitWindow    time.Duration `env:"-"`

	GRPCAddr    string `env:"RAWR_GRPC_ADDR" envDefault:":50051" validate:"required"`
	MetricsAddr string `env:"RAWR_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"RAWR_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	CacheDefaultTTLMs    int   `env:"RAWR_CACHE_DEFAULT_TTL_MS" envDefault:"300000" validate:"gte=0"`
	CacheSweepIntervalMs int   `env:"RAWR_CACHE_SWEEP_INTERVAL_MS" envDefault:"60000" validate:"gte=0"`
	L1MaxCost            int64 `env:"RAWR_L1_MAX_COST" envDefault:"0" validate:"gte=0"`

	RateLimitWindowMs int     `env:"RAWR_RATELIMIT_WINDOW_MS" envDefault:"900000" validate:"gt=0"`
	RateLimitMax      int     `env:"RAWR_RATELIMIT_MAX" envDefault:"100" validate:"gt=0"`
	RateLimitBackend  string  `env:"RAWR_RATELIMIT_BACKEND" envDefault:"memory" validate:"oneof=memory redis"`
	BurstRPS          float64 `env:"RAWR_BURST_RPS" envDefault:"0" validate:"gte=0"`
	Burst             int     `env:"RAWR_BURST" envDefault:"0" validate:"gte=0"`

	RedisAddr     string `env:"RAWR_REDIS_ADDR" validate:"required_if=RateLimitBackend redis"`
	RedisPassword string `env:"RAWR_REDIS_PASSWORD"`
	RedisDB       int    `env:"RAWR_REDIS_DB" envDefault:"0" validate:"gte=0"`

	PostgresDSN    string   `env:"RAWR_POSTGRES_DSN"`
	TrustedProxies []string `env:"RAWR_TRUSTED_PROXIES" envSeparator:","`
	APIKeys        string   `env:"RAWR_API_KEYS"`
	TracingStdout  bool     `env:"RAWR_TRACING_STDOUT" envDefault:"false"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse loads configuration from environment variables, validates and
// normalizes it.
func Parse() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.CacheDefaultTTL = time.Duration(c.CacheDefaultTTLMs) * time.Millisecond
	c.CacheSweepInterval = time.Duration(c.CacheSweepIntervalMs) * time.Millisecond
	c.RateLimitWindow = time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

// BurstEnabled reports whether the process-wide burst gate is configured.
func (c *Config) BurstEnabled() bool { return c.BurstRPS > 0 && c.Burst > 0 }
