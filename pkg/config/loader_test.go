package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadConfigMergesEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: "8080"
db:
  host: localhost
  port: 5432
  password: ${DB_SECRET}
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
	writeFile(t, dir, "secrets.env", `
# comment
DB_SECRET="s3cret"
`)

	cfg, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db, ok := cfg["db"].(map[string]interface{})
	require.True(t, ok, "db section missing: %#v", cfg)
	assert.Equal(t, "db.internal", db["host"], "env file overrides base")
	assert.Equal(t, 5432, db["port"], "base port survives the merge")
	assert.Equal(t, "s3cret", db["password"], "secret substitution")
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestDecodeIntoStruct(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  slow_query: 250ms
server:
  port: "9090"
`)

	var out struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	require.NoError(t, Decode("local", dir, &out))
	assert.Equal(t, 5432, out.DB.Port)
	assert.Equal(t, "9090", out.Server.Port)
	assert.Equal(t, 250*time.Millisecond, out.DB.SlowQuery)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_PORT", "6543")
	t.Setenv("MQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("REDIS_ADDR", "redis:6379")

	db := DBConfig{Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, 6543, db.Port)

	var mq MQConfig
	OverrideMQFromEnv(&mq)
	assert.True(t, mq.Enabled, "MQ_URL enables publishing")
	assert.Equal(t, "amqp://guest:guest@mq:5672/", mq.URL)

	var rdb RedisConfig
	OverrideRedisFromEnv(&rdb)
	assert.True(t, rdb.Enabled, "REDIS_ADDR enables redis")
	assert.Equal(t, "redis:6379", rdb.Addr)
}
