// Package config loads runtime configuration for the JournalKeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   sync server base URL
//	-d string   local database file
//	-i int      online status check interval (seconds)
//	-s int      background sync interval (seconds)
//	-l string   log level
//
// # JSON schema
//
// Durations accept strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "db_path": "journal.db",
//	  "online_check_interval": "3s",
//	  "sync_interval": "30s",
//	  "sync_timeout": "2m",
//	  "max_attempts": 3,
//	  "retry_base": "2s",
//	  "retry_max": "5m",
//	  "log_level": "warn"
//	}
package config
