package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/flagx"
	"github.com/dmitrijs2005/journalkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	DBPath              string         `json:"db_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	SyncTimeout         timex.Duration `json:"sync_timeout"`
	MaxAttempts         int            `json:"max_attempts"`
	RetryBase           timex.Duration `json:"retry_base"`
	RetryMax            timex.Duration `json:"retry_max"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file given by
// -c or -config. Keys missing from the file keep their current value.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DBPath != "" {
		cfg.DBPath = jc.DBPath
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.MaxAttempts > 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	overlay(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	overlay(&cfg.SyncInterval, jc.SyncInterval)
	overlay(&cfg.SyncTimeout, jc.SyncTimeout)
	overlay(&cfg.RetryBase, jc.RetryBase)
	overlay(&cfg.RetryMax, jc.RetryMax)
}

func overlay(dst *time.Duration, d timex.Duration) {
	if d.Duration > 0 {
		*dst = time.Duration(d.Duration)
	}
}
