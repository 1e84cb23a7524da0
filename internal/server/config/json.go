package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/flagx"
	"github.com/dmitrijs2005/journalkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "1m" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	AuthRateLimitPerMinute       int            `json:"auth_rate_limit_per_minute"`
	MaxMediaSize                 int64          `json:"max_media_size"`
	CacheSize                    int            `json:"cache_size"`
	CacheTTL                     timex.Duration `json:"cache_ttl"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c or -config. Keys that
// are missing or zero keep the current value. An unreadable file or invalid
// JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	overlay(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	overlay(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.AuthRateLimitPerMinute > 0 {
		config.AuthRateLimitPerMinute = c.AuthRateLimitPerMinute
	}
	if c.MaxMediaSize > 0 {
		config.MaxMediaSize = c.MaxMediaSize
	}
	if c.CacheSize > 0 {
		config.CacheSize = c.CacheSize
	}
	overlay(&config.CacheTTL, c.CacheTTL)
	overlay(&config.ShutdownTimeout, c.ShutdownTimeout)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlay(dst *time.Duration, d timex.Duration) {
	if d.Duration > 0 {
		*dst = time.Duration(d.Duration)
	}
}
