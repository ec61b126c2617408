package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tendercrm/internal/flagx"
	"github.com/dmitrijs2005/tendercrm/internal/server"
	"github.com/dmitrijs2005/tendercrm/internal/server/auth"
	"github.com/dmitrijs2005/tendercrm/internal/server/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

// run starts the server, or with -k <role> prints a signed API key and
// returns.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := config.LoadConfig(args)

	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	role := fs.String("k", "", "print an API key for role (anon, authenticated, service_role) and exit")
	if err := flagx.ParseKnown(fs, args); err != nil {
		return err
	}

	if *role != "" {
		r, err := auth.ParseRole(*role)
		if err != nil {
			return err
		}
		key, err := auth.GenerateKey(r, []byte(cfg.SecretKey), cfg.APIKeyValidity)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, key)
		return err
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
