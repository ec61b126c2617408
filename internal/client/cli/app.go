package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/client/config"
	"github.com/dmitrijs2005/tendercrm/internal/client/connectivity"
	"github.com/dmitrijs2005/tendercrm/internal/client/services"
	"github.com/dmitrijs2005/tendercrm/internal/client/store"
	"github.com/dmitrijs2005/tendercrm/internal/client/syncer"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App is the client context: it owns every component of the sync layer and
// their lifecycle. Nothing in the client lives in package-level state.
type App struct {
	config *config.Config
	logger logging.Logger

	store    *store.Store
	remote   client.Client
	observer connectivity.Observer
	watcher  *connectivity.PingWatcher
	engine   *syncer.Engine
	data     *services.DataService

	in  *bufio.Reader
	out io.Writer

	mu   sync.Mutex
	Mode Mode

	unsubscribe []func()
	closeOnce   sync.Once
}

// Option customizes NewApp.
type Option func(*App)

// WithRemote replaces the REST client built from the config.
func WithRemote(c client.Client) Option {
	return func(a *App) { a.remote = c }
}

// WithObserver replaces the ping watcher built from the config.
func WithObserver(o connectivity.Observer) Option {
	return func(a *App) { a.observer = o }
}

func WithLogger(l logging.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithIO redirects the REPL input and all user-facing output.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = bufio.NewReader(in)
		a.out = out
	}
}

// NewApp validates c and wires the store, remote client, connectivity
// observer, sync engine and data service. A missing remote URL or API key
// fails here with a *client.ConfigError. The sync engine is not started;
// Run starts it.
func NewApp(ctx context.Context, c *config.Config, opts ...Option) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	strategy, err := syncer.ParseStrategy(c.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: c,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		l, err := logging.New(os.Stderr, c.LogLevel, "text")
		if err != nil {
			return nil, err
		}
		a.logger = l
	}

	if a.remote == nil {
		rc, err := client.TryCreateClient(client.Config{
			BaseURL: c.RemoteURL,
			APIKey:  c.APIKey,
			Timeout: c.RequestTimeout,
		}, client.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.remote = rc
	}

	if a.observer == nil {
		if c.Offline {
			a.observer = connectivity.NewManual(false)
		} else {
			a.watcher = connectivity.NewPingWatcher(a.remote, c.OnlineCheckInterval, c.RequestTimeout, a.logger)
			a.watcher.Start(ctx)
			a.observer = a.watcher
		}
	}
	a.setMode(a.observer.Online())

	a.store = store.New(c.DatabasePath, a.logger)
	a.engine = syncer.New(a.store, a.remote, a.observer, syncer.Config{
		MaxRetries:       c.MaxRetries,
		InitialSyncDelay: c.InitialSyncDelay,
		Strategy:         strategy,
	}, a.logger)

	a.data, err = services.NewDataService(ctx, services.Deps{
		Store:    a.store,
		Remote:   a.remote,
		Observer: a.observer,
		Engine:   a.engine,
		Logger:   a.logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.unsubscribe = append(a.unsubscribe,
		a.observer.Subscribe(a.setMode),
		a.engine.OnStatusChange(a.onSyncEvent),
	)
	return a, nil
}

// Data exposes the facade for one-shot commands.
func (a *App) Data() *services.DataService { return a.data }

// Run starts background synchronization and blocks in the REPL until the
// user exits or input ends.
func (a *App) Run(ctx context.Context) {
	a.engine.Start()

	fmt.Fprintln(a.out, "TenderCRM client (type 'help' for commands)")
	runREPL(ctx, a, a.prompt, bufio.NewScanner(a.in))
}

// Close stops every component in reverse order of construction.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for _, u := range a.unsubscribe {
			u()
		}
		if a.data != nil {
			a.data.Close()
		}
		if a.engine != nil {
			a.engine.Close()
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.remote != nil {
			_ = a.remote.Close()
		}
		if a.store != nil {
			_ = a.store.Close()
		}
	})
}

func (a *App) setMode(online bool) {
	mode := ModeOffline
	if online {
		mode = ModeOnline
	}

	a.mu.Lock()
	prev := a.Mode
	a.Mode = mode
	a.mu.Unlock()

	if prev != "" && prev != mode {
		a.printWarning("Switched to %s mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) onSyncEvent(ev syncer.Event) {
	switch {
	case ev.Dropped != nil:
		ch := ev.Dropped
		attempts := "attempts"
		if ch.Retries == 1 {
			attempts = "attempt"
		}
		a.printError("Dropped %s of %s[%s] after %d %s: %v", ch.Action, ch.Table, ch.RecordID, ch.Retries, attempts, ev.Err)
	case ev.Status == syncer.StatusError:
		a.printError("Sync failed: %v", ev.Err)
	}
}

func (a *App) prompt() string {
	status := string(a.mode())
	if n, err := a.data.PendingChangesCount(context.Background()); err == nil && n > 0 {
		status = fmt.Sprintf("%s, %d pending", status, n)
	}
	return status
}
