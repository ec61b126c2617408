package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tendercrm/internal/client/cli"
	"github.com/dmitrijs2005/tendercrm/internal/client/config"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

const configHelp = `Configuration flags (may appear anywhere on the command line):
  -c, -config <file>  JSON config file
  -u <url>            remote base URL
  -k <key>            API key
  -d <path>           local database path
  -i <duration>       online check interval
  -s <duration>       initial sync delay
  -t <duration>       request timeout
  -r <n>              retries before a pending change is dropped
  -m <strategy>       server-wins, client-wins or last-write-wins
  -l <level>          log level`

// newRootCmd builds the command tree. opts are passed to every cli.NewApp
// call, which lets tests swap the remote and the connectivity observer.
func newRootCmd(cfg *config.Config, opts ...cli.Option) *cobra.Command {
	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
		ctx := cmd.Context()
		app, err := cli.NewApp(ctx, cfg, append([]cli.Option{cli.WithIO(cmd.InOrStdin(), cmd.OutOrStdout())}, opts...)...)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, app)
	}

	root := &cobra.Command{
		Use:   "tendercrm",
		Short: "Offline-first TenderCRM client",
		Long: `TenderCRM keeps tenders, suppliers and expenses in a local database and
synchronizes them with the remote when it is reachable.

` + configHelp,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				app.Run(ctx)
				return nil
			})
		},
	}

	var listJSON bool
	listCmd := &cobra.Command{
		Use:       "list <table>",
		Short:     "List tenders, suppliers or expenses",
		Example:   "  tendercrm list tenders -u https://crm.example -k $API_KEY",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tenders", "suppliers", "expenses"},
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := entities.ParseTable(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				if !listJSON {
					return app.List(ctx, args)
				}
				var list any
				switch table {
				case entities.Tenders:
					list, err = app.Data().GetTenders(ctx)
				case entities.Suppliers:
					list, err = app.Data().GetSuppliers(ctx)
				case entities.Expenses:
					list, err = app.Data().GetExpenses(ctx)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print rows as JSON")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending changes and refresh the local copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				err := app.Data().SyncNow(ctx)
				if errors.Is(err, common.ErrOffline) {
					return fmt.Errorf("remote unreachable, changes stay queued: %w", err)
				}
				if err != nil {
					return err
				}
				n, err := app.Data().PendingChangesCount(ctx)
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Synchronized, %d changes pending\n", n)
				return nil
			})
		},
	}

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached rows and pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				if !statsJSON {
					return app.Stats(ctx)
				}
				st, err := app.Data().CacheStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Wipe the local database, pending changes included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				if !yes {
					return app.Clear(ctx)
				}
				if err := app.Data().ClearAllData(ctx); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "Local data cleared")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	root.AddCommand(listCmd, syncCmd, statsCmd, clearCmd)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
