package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotEnv(t *testing.T) {
	t.Helper()
	orig := loadDotEnv
	loadDotEnv = func() {}
	t.Cleanup(func() { loadDotEnv = orig })
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, StorageDisk, c.StorageBackend)
	assert.Equal(t, int64(10<<20), c.MaxUploadSize)
	assert.Equal(t, DefaultAllowedMIMETypes, c.AllowedMIMETypes)
	assert.Empty(t, c.RedisAddr)
	assert.Empty(t, c.KafkaBrokers)
	require.NoError(t, c.Validate())
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	noDotEnv(t)

	c, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_JSONFile(t *testing.T) {
	noDotEnv(t)
	path := writeFile(t, "cfg.json", `{
		"http_addr": ":9090",
		"secret_key": "from-file",
		"access_token_ttl": "5m",
		"refresh_token_ttl": 3600000000000,
		"storage": {"backend": "s3", "s3_bucket": "docs"},
		"upload": {"max_size": 1024},
		"kafka": {"brokers": ["k1:9092"]}
	}`)

	c, err := LoadConfig([]string{"-c", path})
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, "from-file", c.SecretKey)
	assert.Equal(t, 5*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, StorageS3, c.StorageBackend)
	assert.Equal(t, "docs", c.S3Bucket)
	assert.Equal(t, int64(1024), c.MaxUploadSize)
	assert.Equal(t, []string{"k1:9092"}, c.KafkaBrokers)
	// untouched by the file
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Equal(t, 10*time.Minute, c.QACacheTTL)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	noDotEnv(t)
	path := writeFile(t, "cfg.yaml", `
http_addr: ":7070"
http:
  rate_limit_rps: 2.5
  rate_limit_burst: 4
  cors_origins: ["https://app.example"]
  read_timeout: 3s
qa:
  cache_ttl: 1m
  cache_size: 8
`)

	c, err := LoadConfig([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, ":7070", c.HTTPAddr)
	assert.Equal(t, 2.5, c.RateLimitRPS)
	assert.Equal(t, 4, c.RateLimitBurst)
	assert.Equal(t, []string{"https://app.example"}, c.CORSOrigins)
	assert.Equal(t, 3*time.Second, c.ReadTimeout)
	assert.Equal(t, time.Minute, c.QACacheTTL)
	assert.Equal(t, 8, c.QACacheSize)
}

func TestLoadConfig_BadFile(t *testing.T) {
	noDotEnv(t)

	_, err := LoadConfig([]string{"-c", writeFile(t, "bad.json", `{ nope`)})
	require.Error(t, err)

	_, err = LoadConfig([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}

func TestLoadConfig_Precedence(t *testing.T) {
	noDotEnv(t)
	path := writeFile(t, "cfg.json", `{"http_addr": ":1111", "database_dsn": "file-dsn", "secret_key": "file"}`)

	t.Setenv("HTTP_ADDR", ":2222")
	t.Setenv("JWT_SECRET", "env")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	c, err := LoadConfig([]string{"-c", path, "-a", ":3333", "-t", "2m"})
	require.NoError(t, err)

	assert.Equal(t, ":3333", c.HTTPAddr, "flag wins over env and file")
	assert.Equal(t, "env", c.SecretKey, "env wins over file")
	assert.Equal(t, "file-dsn", c.DatabaseDSN)
	assert.Equal(t, 2*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, []string{"a:1", "b:2"}, c.KafkaBrokers)
	assert.Equal(t, 100, c.RateLimitBurst, "unparsable env keeps previous value")
}

func TestParseFlags(t *testing.T) {
	c := &Config{}
	c.LoadDefaults()

	err := parseFlags(c, []string{
		"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-r", "48h",
		"-storage", "s3", "-u", "user", "-p", "password", "-b", "bucket", "-g", "eu-west-1",
		"-e", "http://minio:9000", "-max-upload=2048", "-redis", "redis:6379", "-kafka", "k:9092",
		"-unknown", "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", c.HTTPAddr)
	assert.Equal(t, "db", c.DatabaseDSN)
	assert.Equal(t, "secret", c.SecretKey)
	assert.Equal(t, 48*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, StorageS3, c.StorageBackend)
	assert.Equal(t, "user", c.S3AccessKey)
	assert.Equal(t, "password", c.S3SecretKey)
	assert.Equal(t, "bucket", c.S3Bucket)
	assert.Equal(t, "eu-west-1", c.S3Region)
	assert.Equal(t, "http://minio:9000", c.S3BaseEndpoint)
	assert.Equal(t, int64(2048), c.MaxUploadSize)
	assert.Equal(t, "redis:6379", c.RedisAddr)
	assert.Equal(t, []string{"k:9092"}, c.KafkaBrokers)
}

func TestParseFlags_BadValue(t *testing.T) {
	c := &Config{}
	c.LoadDefaults()
	require.Error(t, parseFlags(c, []string{"-t", "forever"}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no secret", func(c *Config) { c.SecretKey = "" }},
		{"no dsn", func(c *Config) { c.DatabaseDSN = "" }},
		{"unknown backend", func(c *Config) { c.StorageBackend = "tape" }},
		{"s3 without bucket", func(c *Config) { c.StorageBackend = StorageS3; c.S3Bucket = "" }},
		{"disk without root", func(c *Config) { c.DiskRoot = "" }},
		{"zero upload size", func(c *Config) { c.MaxUploadSize = 0 }},
		{"zero ttl", func(c *Config) { c.AccessTokenTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{}
			c.LoadDefaults()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
