package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tendercrm/internal/flagx"
	"github.com/dmitrijs2005/tendercrm/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept "3s" style strings or integer nanoseconds.
type JsonConfig struct {
	RemoteURL           string         `json:"remote_url"`
	APIKey              string         `json:"api_key"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	InitialSyncDelay    timex.Duration `json:"initial_sync_delay"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	MaxRetries          int            `json:"max_retries"`
	ConflictStrategy    string         `json:"conflict_strategy"`
	LogLevel            string         `json:"log_level"`
	Offline             bool           `json:"offline"`
}

// parseJson overlays cfg with the file named by -c/-config in args. Keys
// missing from the file leave the current values alone.
func parseJson(cfg *Config, args []string) {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.RemoteURL, jc.RemoteURL)
	setString(&cfg.APIKey, jc.APIKey)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.ConflictStrategy, jc.ConflictStrategy)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.InitialSyncDelay.Duration != 0 {
		cfg.InitialSyncDelay = jc.InitialSyncDelay.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxRetries != 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	if jc.Offline {
		cfg.Offline = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
