package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-s", "-t", "-r", "-l",
	"-storage", "-u", "-p", "-b", "-g", "-e", "-root",
	"-max-upload", "-redis", "-kafka",
}

// parseFlags overlays command-line flags onto c.
//
//	-a string      HTTP bind address (e.g. ":8080")
//	-d string      PostgreSQL DSN
//	-s string      JWT HMAC secret
//	-t duration    access token lifetime
//	-r duration    refresh token lifetime
//	-l string      log level
//	-storage       storage backend, s3 or disk
//	-u, -p         S3 access key and secret
//	-b, -g, -e     S3 bucket, region and endpoint
//	-root          disk storage root
//	-max-upload    max upload size in bytes
//	-redis         Redis address
//	-kafka         comma-separated Kafka brokers
//
// Arguments not listed above (including -c/-config) are ignored.
func parseFlags(c *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("docvault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.HTTPAddr, "a", c.HTTPAddr, "address and port to run server")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.SecretKey, "s", c.SecretKey, "secret key")
	fs.DurationVar(&c.AccessTokenTTL, "t", c.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "r", c.RefreshTokenTTL, "refresh token lifetime")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")

	fs.StringVar(&c.StorageBackend, "storage", c.StorageBackend, "storage backend (s3|disk)")
	fs.StringVar(&c.S3AccessKey, "u", c.S3AccessKey, "S3 access key")
	fs.StringVar(&c.S3SecretKey, "p", c.S3SecretKey, "S3 secret key")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&c.DiskRoot, "root", c.DiskRoot, "disk storage root")

	fs.Int64Var(&c.MaxUploadSize, "max-upload", c.MaxUploadSize, "max upload size in bytes")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address")
	brokers := fs.String("kafka", strings.Join(c.KafkaBrokers, ","), "Kafka brokers")

	if err := fs.Parse(filtered); err != nil {
		return err
	}

	c.KafkaBrokers = splitCSV(*brokers)
	return nil
}
