package config

import "time"

// Config holds runtime settings for the JournalKeeper CLI.
//
// Durations are time.Duration values. MaxAttempts, RetryBase and RetryMax
// feed the sync engine's retry policy.
type Config struct {
	ServerURL           string
	DBPath              string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	SyncTimeout         time.Duration
	MaxAttempts         int
	RetryBase           time.Duration
	RetryMax            time.Duration
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DBPath = "journal.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.SyncTimeout = 2 * time.Minute
	c.MaxAttempts = 3
	c.RetryBase = 2 * time.Second
	c.RetryMax = 5 * time.Minute
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
