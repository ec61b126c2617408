package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tendercrm/internal/flagx"
	"github.com/dmitrijs2005/tendercrm/internal/timex"
)

// JsonConfig is the JSON file layout. api_key_validity accepts "720h" or
// integer nanoseconds.
type JsonConfig struct {
	EndpointAddr   string         `json:"endpoint_addr"`
	DatabaseDSN    string         `json:"database_dsn"`
	SecretKey      string         `json:"secret_key"`
	APIKeyValidity timex.Duration `json:"api_key_validity"`
	LogLevel       string         `json:"log_level"`
	InMemory       bool           `json:"in_memory"`
}

// parseJson loads the file named by -c/-config in args into config. Keys
// absent from the file keep their current values. Unreadable or invalid
// files panic.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlags(args)
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

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.APIKeyValidity.Duration != 0 {
		config.APIKeyValidity = c.APIKeyValidity.Duration
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
	if c.InMemory {
		config.InMemory = true
	}
}
