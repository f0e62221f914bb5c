package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"habittracker/internal/engine"
	"habittracker/internal/repository"
	"habittracker/pkg/config"
)

type AppConfig struct {
	Timezone             string        `yaml:"timezone"`
	ReconcileConcurrency int           `yaml:"reconcile_concurrency"`
	LockTTL              time.Duration `yaml:"lock_ttl"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver"`
	FallbackToMemory bool   `yaml:"fallback_to_memory"`
}

type RunnerConfig struct {
	Port             string        `yaml:"port"`
	Interval         time.Duration `yaml:"interval"`
	OutboxInterval   time.Duration `yaml:"outbox_interval"`
	OutboxBatchSize  int           `yaml:"outbox_batch_size"`
	OutboxMaxRetries int           `yaml:"outbox_max_retries"`
}

// Config is shared by habit-service and habit-runner.
type Config struct {
	Env      string              `yaml:"-"`
	Server   config.ServerConfig `yaml:"server"`
	App      AppConfig           `yaml:"app"`
	Storage  StorageConfig       `yaml:"storage"`
	DB       config.DBConfig     `yaml:"db"`
	Mongo    config.MongoConfig  `yaml:"mongo"`
	Redis    config.RedisConfig  `yaml:"redis"`
	MQ       config.MQConfig     `yaml:"mq"`
	Otel     config.OtelConfig   `yaml:"otel"`
	Strength engine.Params       `yaml:"strength"`
	Runner   RunnerConfig        `yaml:"runner"`
}

func defaults() Config {
	return Config{
		Server:   config.ServerConfig{Port: "8080"},
		App:      AppConfig{Timezone: "UTC", ReconcileConcurrency: 8, LockTTL: 10 * time.Second},
		Storage:  StorageConfig{Driver: repository.DriverMemory},
		Strength: engine.DefaultParams,
		Runner: RunnerConfig{
			Port:             "8081",
			Interval:         time.Hour,
			OutboxInterval:   2 * time.Second,
			OutboxBatchSize:  100,
			OutboxMaxRetries: 5,
		},
	}
}

// Load reads CONFIG_DIR (default "config") for CONFIG_ENV and exits on error.
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom layers the yaml files, applies environment overrides and validates the result.
func LoadFrom(env, configDir string) (*Config, error) {
	cfg := defaults()
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMongoFromEnv(&cfg.Mongo)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if fallback := os.Getenv("STORAGE_FALLBACK_TO_MEMORY"); fallback != "" {
		if b, err := strconv.ParseBool(fallback); err == nil {
			cfg.Storage.FallbackToMemory = b
		}
	}
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		cfg.App.Timezone = tz
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if err := c.Strength.Validate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case repository.DriverPostgres, repository.DriverMongo, repository.DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be postgres, mongo or memory, got %q", c.Storage.Driver)
	}
	if c.App.ReconcileConcurrency < 1 {
		return fmt.Errorf("app.reconcile_concurrency must be positive")
	}
	if c.Runner.Interval <= 0 {
		return fmt.Errorf("runner.interval must be positive")
	}
	if c.Runner.OutboxBatchSize < 1 || c.Runner.OutboxMaxRetries < 1 {
		return fmt.Errorf("runner.outbox_batch_size and runner.outbox_max_retries must be positive")
	}
	return nil
}

// Location resolves app.timezone, the zone that decides what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}
