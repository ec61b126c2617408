// Command client is the TenderCRM command-line client. Without a
// subcommand it opens the interactive REPL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tendercrm/internal/client/config"
	"github.com/dmitrijs2005/tendercrm/internal/flagx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cfg := config.LoadConfig(args)

	root := newRootCmd(cfg)
	root.SetArgs(flagx.StripArgs(args, config.FlagNames()))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
