package config

import (
	"flag"

	"github.com/dmitrijs2005/tendercrm/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-d string     PostgreSQL DSN
//	-s string     API key HMAC secret
//	-v duration   validity of printed API keys, 0 for none
//	-l string     log level
//	-m            in-memory storage
//
// Args that are not listed above are ignored.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.APIKeyValidity, "v", config.APIKeyValidity, "validity of printed API keys")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.InMemory, "m", config.InMemory, "keep rows in memory, no database")

	if err := flagx.ParseKnown(fs, args); err != nil {
		panic(err)
	}
}
