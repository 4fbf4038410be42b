package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophdrop/internal/flagx"
	"github.com/dmitrijs2005/gophdrop/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so both "30m" and integer nanoseconds are accepted.
// Only keys present in the file (non-zero after decoding) override the
// values already held by Config.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	HealthAddr                   string         `json:"health_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	StorageBackend               string         `json:"storage_backend"`
	DataDir                      string         `json:"data_dir"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	MaxUploadSize                int64          `json:"max_upload_size"`
	MinPasswordLength            int            `json:"min_password_length"`
	Retention                    timex.Duration `json:"retention"`
	SweepInterval                timex.Duration `json:"sweep_interval"`
	OrphanGrace                  timex.Duration `json:"orphan_grace"`
	RedisAddr                    string         `json:"redis_addr"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Without the flag nothing happens. An unreadable file or invalid JSON panics:
// configuration errors are fatal at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.HealthAddr, c.HealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DataDir, c.DataDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.Retention.Duration > 0 {
		config.Retention = c.Retention.Duration
	}
	if c.SweepInterval.Duration > 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.OrphanGrace.Duration > 0 {
		config.OrphanGrace = c.OrphanGrace.Duration
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if c.MinPasswordLength > 0 {
		config.MinPasswordLength = c.MinPasswordLength
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
