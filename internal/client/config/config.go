package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/client/syncer"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

// Config holds runtime settings for the TenderCRM client.
//
// RemoteURL and APIKey are checked when the remote client is created, so a
// config without them still validates.
type Config struct {
	RemoteURL           string
	APIKey              string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	InitialSyncDelay    time.Duration
	RequestTimeout      time.Duration
	MaxRetries          int
	ConflictStrategy    string
	LogLevel            string

	// Offline pins the connectivity observer to offline.
	Offline bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RemoteURL = "http://127.0.0.1:8080"
	c.DatabasePath = "tendercrm.db"
	c.OnlineCheckInterval = 5 * time.Second
	c.InitialSyncDelay = 2 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.MaxRetries = syncer.DefaultMaxRetries
	c.ConflictStrategy = string(syncer.DefaultStrategy)
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags found in args. Later sources take
// precedence over earlier ones. It panics on an unreadable config file or
// malformed flags.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}

// Validate reports settings that the client cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("online_check_interval must be positive, got %s", c.OnlineCheckInterval))
	}
	if c.InitialSyncDelay < 0 {
		errs = append(errs, fmt.Errorf("initial_sync_delay must not be negative, got %s", c.InitialSyncDelay))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if _, err := syncer.ParseStrategy(c.ConflictStrategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
