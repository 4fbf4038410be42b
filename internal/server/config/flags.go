package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-k", "-f",
	"-u", "-p", "-b", "-region", "-e",
	"-m", "-w", "-i", "-o", "-redis", "-l",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       HTTP bind address (e.g. ":8000")
//	-g string       gRPC health bind address
//	-d string       PostgreSQL DSN
//	-s string       JWT HMAC secret key
//	-t int          access token validity, minutes
//	-r int          refresh token validity, minutes
//	-k string       storage backend: fs | s3
//	-f string       data directory for the fs backend
//	-u, -p string   S3 credentials
//	-b string       S3 bucket
//	-region string  S3 region
//	-e string       S3 base endpoint
//	-m int          max upload size, MiB
//	-w int          bin retention, hours
//	-i int          sweep interval, minutes
//	-o int          orphan grace period, minutes
//	-redis string   Redis address for the sweep lock
//	-l string       log level
//
// os.Args is filtered through flagx.FilterArgs first so that -c/-config and
// flags of other components do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run HTTP server")
	fs.StringVar(&config.HealthAddr, "g", config.HealthAddr, "address and port of gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend (fs|s3)")
	fs.StringVar(&config.DataDir, "f", config.DataDir, "data directory for fs storage")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	maxUpload := fs.Int64("m", config.MaxUploadSize>>20, "max upload size (in MiB)")
	retention := fs.Int("w", int(config.Retention.Hours()), "bin retention (in hours)")
	sweepInterval := fs.Int("i", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")
	orphanGrace := fs.Int("o", int(config.OrphanGrace.Minutes()), "orphan grace period (in minutes)")

	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for sweep lock")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidity) * time.Minute
	config.MaxUploadSize = *maxUpload << 20
	config.Retention = time.Duration(*retention) * time.Hour
	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	config.OrphanGrace = time.Duration(*orphanGrace) * time.Minute
}
