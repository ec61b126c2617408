// Package config loads runtime configuration for the TenderCRM client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
//	{
//	  "remote_url": "http://127.0.0.1:8080",
//	  "api_key": "eyJhbGciOi...",
//	  "database_path": "tendercrm.db",
//	  "online_check_interval": "5s",
//	  "initial_sync_delay": "2s",
//	  "request_timeout": "10s",
//	  "max_retries": 5,
//	  "conflict_strategy": "last-write-wins",
//	  "log_level": "warn",
//	  "offline": false
//	}
//
// Durations use timex.Duration, so integer nanoseconds work too.
package config
