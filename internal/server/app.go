// Package server wires the reference backend: storage, row service and the
// REST API, and runs the HTTP server until its context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tendercrm/internal/logging"
	"github.com/dmitrijs2005/tendercrm/internal/server/api"
	"github.com/dmitrijs2005/tendercrm/internal/server/config"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tendercrm/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	server *http.Server
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(os.Stdout, c.LogLevel, "json")
	if err != nil {
		return nil, err
	}

	var repos repomanager.RepositoryManager
	if c.InMemory {
		repos = repomanager.NewInMemoryRepositoryManager()
	} else {
		pg, err := repomanager.NewPostgresRepositoryManager(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repos = pg
	}

	rs := services.NewRowService(repos, logger)
	handler := api.NewServer(rs, c.SecretKey, logger).Routes()

	return &App{
		config: c,
		logger: logger,
		repos:  repos,
		server: &http.Server{
			Addr:              c.EndpointAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// Run listens on the configured address and serves until ctx is done.
func (app *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.config.EndpointAddr)
	if err != nil {
		return err
	}
	return app.Serve(ctx, ln)
}

// Serve applies migrations and serves on ln until ctx is done, then shuts
// the HTTP server down gracefully and closes storage.
func (app *App) Serve(ctx context.Context, ln net.Listener) error {
	app.logger.Info(ctx, "Starting app...", "in_memory", app.config.InMemory)

	if err := app.repos.RunMigrations(ctx); err != nil {
		_ = ln.Close()
		return errors.Join(fmt.Errorf("failed to run migrations: %w", err), app.repos.Close())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(gctx, "Starting HTTP server", "address", ln.Addr().String())
		if err := app.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(context.Background(), "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	return errors.Join(err, app.repos.Close())
}
