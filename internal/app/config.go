package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

const defaultAddr = "0.0.0.0:8080"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (COUPONS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address" validate:"required"`
	Store       string `default:"postgres" usage:"Coupon store backend: postgres or memory" validate:"oneof=postgres memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (COUPONS_DATABASE_URL or DATABASE_URL)" flag:"database-url" validate:"required_if=Store postgres"`
	Scan        ScanConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// ScanConfig controls how the applicable coupon scan is spread over workers.
type ScanConfig struct {
	Workers           int `default:"4"  usage:"Parallel workers for the applicable coupon scan" validate:"gte=1"`
	ParallelThreshold int `default:"64" usage:"Catalog size above which the scan runs in parallel" flag:"parallel-threshold" validate:"gte=0"`
}

// CacheConfig controls the in-process active coupon catalog cache. A zero
// TTL disables it.
type CacheConfig struct {
	TTL             time.Duration `default:"5s" usage:"Active coupon catalog cache TTL (0 disables)" validate:"gte=0"`
	CleanupInterval time.Duration `default:"1m" usage:"Expired cache entry cleanup interval" flag:"cleanup-interval" validate:"gt=0"`
}

// RateLimitConfig controls the per-client sliding window rate limiter on the
// cart endpoints.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window" validate:"gt=0"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration" validate:"gt=0"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay" validate:"gte=0"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout" validate:"gt=0"`
}

// LoadConfig loads configuration from environment variables, YAML config files
// and command line flags, then applies platform defaults and validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "COUPONS"
	if base.Files == nil {
		base.Files = []string{"config.yaml", "/etc/coupons/config.yaml"}
	}
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COUPONS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
