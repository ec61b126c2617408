package config

import (
	"flag"

	"github.com/dmitrijs2005/tendercrm/internal/flagx"
)

// newFlagSet defines the client flags on top of the values already in cfg.
//
//	-u string     remote base URL
//	-k string     API key
//	-d string     local database path
//	-i duration   online check interval
//	-s duration   initial sync delay
//	-t duration   request timeout
//	-r int        retries before a pending change is dropped
//	-m string     conflict strategy
//	-l string     log level
func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	fs.StringVar(&cfg.RemoteURL, "u", cfg.RemoteURL, "remote base URL")
	fs.StringVar(&cfg.APIKey, "k", cfg.APIKey, "API key")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.InitialSyncDelay, "s", cfg.InitialSyncDelay, "initial sync delay")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "retries before a pending change is dropped")
	fs.StringVar(&cfg.ConflictStrategy, "m", cfg.ConflictStrategy, "conflict strategy: server-wins, client-wins, last-write-wins")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs
}

// parseFlags populates Config fields from args. Arguments that are not
// config flags (subcommands, their own flags) are ignored.
func parseFlags(cfg *Config, args []string) {
	if err := flagx.ParseKnown(newFlagSet(cfg), args); err != nil {
		panic(err)
	}
}

// FlagNames lists every flag LoadConfig consumes, -c/-config included, so
// callers can strip them before handing the rest to another parser.
func FlagNames() []string {
	names := flagx.Names(newFlagSet(&Config{}))
	return append(names, "-c", "--c", "-config", "--config")
}
