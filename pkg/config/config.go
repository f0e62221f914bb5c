package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig PostgreSQL connection settings
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// SlowQuery threshold for the slow-query tracer, 0 means 100ms
	SlowQuery time.Duration `yaml:"slow_query"`
}

// MongoConfig MongoDB connection settings
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// MQConfig RabbitMQ settings
type MQConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig Redis settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// OtelConfig tracing exporter settings
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// OverrideDBFromEnv overrides DB settings from DB_* variables.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMongoFromEnv overrides Mongo settings from MONGO_URI / MONGO_DATABASE.
func OverrideMongoFromEnv(cfg *MongoConfig) {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.URI = uri
	}
	if name := os.Getenv("MONGO_DATABASE"); name != "" {
		cfg.Database = name
	}
}

// OverrideMQFromEnv sets the MQ URL from MQ_URL and enables publishing when it is present.
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
		cfg.Enabled = true
	}
}

// OverrideRedisFromEnv overrides Redis settings from REDIS_* variables.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
		cfg.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv overrides the listen port from SERVER_PORT.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideOtelFromEnv enables tracing when OTEL_EXPORTER_OTLP_ENDPOINT is set.
func OverrideOtelFromEnv(cfg *OtelConfig) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
		cfg.Enabled = true
	}
}
