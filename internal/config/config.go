// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every knob the server reads at startup.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Pricing PricingConfig
}

type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// StorageConfig selects the store. Without DatabaseURL everything lives in
// memory; RedisURL only takes effect on top of a database.
type StorageConfig struct {
	DatabaseURL string        `validate:"omitempty,url"`
	RedisURL    string        `validate:"omitempty,url"`
	CacheTTL    time.Duration `validate:"gt=0"`
}

type PricingConfig struct {
	MinInterval  time.Duration `validate:"gt=0"`
	MaxInterval  time.Duration `validate:"gtefield=MinInterval"`
	UserBehavior float64       `validate:"gte=0,lte=1"`
	Timezone     string
	Location     *time.Location `validate:"-"`
	RandSeed     uint64
	SeedDemo     bool
	AutoWatch    bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
// Unset variables take their defaults; set but malformed ones are an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var env envParser
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: env.getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
			RedisURL:    getEnv("REDIS_URL", ""),
			CacheTTL:    env.getDuration("CACHE_TTL", 30*time.Second),
		},
		Pricing: PricingConfig{
			MinInterval:  env.getDuration("REPRICE_MIN_INTERVAL", 10*time.Second),
			MaxInterval:  env.getDuration("REPRICE_MAX_INTERVAL", 30*time.Second),
			UserBehavior: env.getFloat("USER_BEHAVIOR", 0.5),
			Timezone:     getEnv("PRICING_TZ", "Local"),
			RandSeed:     env.getUint("PRICING_RAND_SEED", uint64(time.Now().UnixNano())),
			SeedDemo:     env.getBool("SEED_DEMO", true),
			AutoWatch:    env.getBool("AUTO_WATCH", true),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Pricing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICING_TZ %q: %w", cfg.Pricing.Timezone, err)
	}
	cfg.Pricing.Location = loc

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envParser reads typed variables and collects one error per malformed key.
type envParser struct {
	errs []error
}

func (e *envParser) fail(key, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, val, err))
}

// getDuration accepts Go duration strings ("15s", "2m").
func (e *envParser) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(val)
	if err != nil {
		e.fail(key, val, err)
		return defaultVal
	}
	return v
}

func (e *envParser) getFloat(key string, defaultVal float64) float64 {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		e.fail(key, val, err)
		return defaultVal
	}
	return v
}

func (e *envParser) getUint(key string, defaultVal uint64) uint64 {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal
	}
	v, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		e.fail(key, val, err)
		return defaultVal
	}
	return v
}

func (e *envParser) getBool(key string, defaultVal bool) bool {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(key, val, err)
		return defaultVal
	}
	return v
}
