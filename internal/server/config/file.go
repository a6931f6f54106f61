package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/flagx"
	"github.com/dmitrijs2005/docvault/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of Config. Fields absent from the file keep
// the value they had before decoding.
type fileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN     string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey       string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenTTL  timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`

	Storage struct {
		Backend     string `json:"backend" yaml:"backend"`
		S3AccessKey string `json:"s3_access_key" yaml:"s3_access_key"`
		S3SecretKey string `json:"s3_secret_key" yaml:"s3_secret_key"`
		S3Bucket    string `json:"s3_bucket" yaml:"s3_bucket"`
		S3Region    string `json:"s3_region" yaml:"s3_region"`
		S3Endpoint  string `json:"s3_endpoint" yaml:"s3_endpoint"`
		DiskRoot    string `json:"disk_root" yaml:"disk_root"`
	} `json:"storage" yaml:"storage"`

	Upload struct {
		MaxSize      int64    `json:"max_size" yaml:"max_size"`
		AllowedTypes []string `json:"allowed_types" yaml:"allowed_types"`
	} `json:"upload" yaml:"upload"`

	HTTP struct {
		RateLimitRPS    float64        `json:"rate_limit_rps" yaml:"rate_limit_rps"`
		RateLimitBurst  int            `json:"rate_limit_burst" yaml:"rate_limit_burst"`
		CORSOrigins     []string       `json:"cors_origins" yaml:"cors_origins"`
		ReadTimeout     timex.Duration `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout    timex.Duration `json:"write_timeout" yaml:"write_timeout"`
		IdleTimeout     timex.Duration `json:"idle_timeout" yaml:"idle_timeout"`
		ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `json:"http" yaml:"http"`

	Redis struct {
		Addr     string `json:"addr" yaml:"addr"`
		Password string `json:"password" yaml:"password"`
		DB       int    `json:"db" yaml:"db"`
	} `json:"redis" yaml:"redis"`

	Kafka struct {
		Brokers []string `json:"brokers" yaml:"brokers"`
		Topic   string   `json:"topic" yaml:"topic"`
	} `json:"kafka" yaml:"kafka"`

	QA struct {
		CacheTTL  timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`
		CacheSize int            `json:"cache_size" yaml:"cache_size"`
	} `json:"qa" yaml:"qa"`
}

func toFile(c *Config) *fileConfig {
	f := &fileConfig{
		HTTPAddr:        c.HTTPAddr,
		DatabaseDSN:     c.DatabaseDSN,
		SecretKey:       c.SecretKey,
		AccessTokenTTL:  timex.Duration{Duration: c.AccessTokenTTL},
		RefreshTokenTTL: timex.Duration{Duration: c.RefreshTokenTTL},
		LogLevel:        c.LogLevel,
	}
	f.Storage.Backend = c.StorageBackend
	f.Storage.S3AccessKey = c.S3AccessKey
	f.Storage.S3SecretKey = c.S3SecretKey
	f.Storage.S3Bucket = c.S3Bucket
	f.Storage.S3Region = c.S3Region
	f.Storage.S3Endpoint = c.S3BaseEndpoint
	f.Storage.DiskRoot = c.DiskRoot
	f.Upload.MaxSize = c.MaxUploadSize
	f.Upload.AllowedTypes = c.AllowedMIMETypes
	f.HTTP.RateLimitRPS = c.RateLimitRPS
	f.HTTP.RateLimitBurst = c.RateLimitBurst
	f.HTTP.CORSOrigins = c.CORSOrigins
	f.HTTP.ReadTimeout = timex.Duration{Duration: c.ReadTimeout}
	f.HTTP.WriteTimeout = timex.Duration{Duration: c.WriteTimeout}
	f.HTTP.IdleTimeout = timex.Duration{Duration: c.IdleTimeout}
	f.HTTP.ShutdownTimeout = timex.Duration{Duration: c.ShutdownTimeout}
	f.Redis.Addr = c.RedisAddr
	f.Redis.Password = c.RedisPassword
	f.Redis.DB = c.RedisDB
	f.Kafka.Brokers = c.KafkaBrokers
	f.Kafka.Topic = c.KafkaTopic
	f.QA.CacheTTL = timex.Duration{Duration: c.QACacheTTL}
	f.QA.CacheSize = c.QACacheSize
	return f
}

func (f *fileConfig) apply(c *Config) {
	c.HTTPAddr = f.HTTPAddr
	c.DatabaseDSN = f.DatabaseDSN
	c.SecretKey = f.SecretKey
	c.AccessTokenTTL = f.AccessTokenTTL.Duration
	c.RefreshTokenTTL = f.RefreshTokenTTL.Duration
	c.LogLevel = f.LogLevel
	c.StorageBackend = f.Storage.Backend
	c.S3AccessKey = f.Storage.S3AccessKey
	c.S3SecretKey = f.Storage.S3SecretKey
	c.S3Bucket = f.Storage.S3Bucket
	c.S3Region = f.Storage.S3Region
	c.S3BaseEndpoint = f.Storage.S3Endpoint
	c.DiskRoot = f.Storage.DiskRoot
	c.MaxUploadSize = f.Upload.MaxSize
	c.AllowedMIMETypes = f.Upload.AllowedTypes
	c.RateLimitRPS = f.HTTP.RateLimitRPS
	c.RateLimitBurst = f.HTTP.RateLimitBurst
	c.CORSOrigins = f.HTTP.CORSOrigins
	c.ReadTimeout = f.HTTP.ReadTimeout.Duration
	c.WriteTimeout = f.HTTP.WriteTimeout.Duration
	c.IdleTimeout = f.HTTP.IdleTimeout.Duration
	c.ShutdownTimeout = f.HTTP.ShutdownTimeout.Duration
	c.RedisAddr = f.Redis.Addr
	c.RedisPassword = f.Redis.Password
	c.RedisDB = f.Redis.DB
	c.KafkaBrokers = f.Kafka.Brokers
	c.KafkaTopic = f.Kafka.Topic
	c.QACacheTTL = f.QA.CacheTTL.Duration
	c.QACacheSize = f.QA.CacheSize
}

// parseFile overlays the file named by -c/-config onto c. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func parseFile(c *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	f := toFile(c)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, f)
	default:
		err = json.Unmarshal(data, f)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	f.apply(c)
	return nil
}
