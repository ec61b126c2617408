// Package syncer reconciles the local store with the remote.
//
// A sync pass replays the pending-change queue oldest first, downloads
// every table and mirrors it locally, then records the time of the pass.
// Only one pass runs at a time; a pass requested while another is running
// is skipped.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/client/connectivity"
	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/client/store"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

const DefaultMaxRetries = 5

// Store is the part of the local store the engine works with.
type Store interface {
	GetByID(ctx context.Context, table entities.Table, id string) (*models.Record, error)
	GetPendingChanges(ctx context.Context) ([]models.PendingChange, error)
	IncrementRetries(ctx context.Context, id string) (int, error)
	StageChange(ctx context.Context, rec *models.Record, ch models.PendingChange) (*models.PendingChange, error)
	CompleteChange(ctx context.Context, ch models.PendingChange, canonical *models.Record) error
	DropChange(ctx context.Context, ch models.PendingChange) (bool, error)
	ApplySnapshot(ctx context.Context, table entities.Table, recs []models.Record, keepLocal store.KeepLocal) ([]models.Record, error)
	SetLastSync(ctx context.Context, t time.Time) error
	LastSync(ctx context.Context) (time.Time, error)
}

type Config struct {
	// MaxRetries is the number of failed replays after which a change is
	// dropped. Zero means DefaultMaxRetries.
	MaxRetries int
	// InitialSyncDelay postpones the first pass after Start.
	InitialSyncDelay time.Duration
	Strategy         Strategy
}

type Engine struct {
	store    Store
	remote   client.Client
	observer connectivity.Observer
	logger   logging.Logger
	cfg      Config
	now      func() time.Time

	busy atomic.Bool

	statusMu sync.Mutex
	status   Status
	subs     listeners

	// lifecycle of background passes
	mu          sync.Mutex
	closed      bool
	bg          sync.WaitGroup
	bgCtx       context.Context
	bgCancel    context.CancelFunc
	unsubscribe func()
	timer       *time.Timer
}

func New(st Store, remote client.Client, observer connectivity.Observer, cfg Config, logger logging.Logger) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultStrategy
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		store:    st,
		remote:   remote,
		observer: observer,
		logger:   logger.With("component", "syncer"),
		cfg:      cfg,
		now:      time.Now,
		status:   StatusIdle,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Start hooks the engine to connectivity changes and schedules the initial
// pass. Going online triggers a pass; going offline reports idle.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.unsubscribe != nil {
		return
	}

	e.unsubscribe = e.observer.Subscribe(func(online bool) {
		if online {
			e.logger.Info(e.bgCtx, "connection restored, starting sync")
			e.Trigger()
			return
		}
		e.setStatus(Event{Status: StatusIdle})
	})
	e.timer = time.AfterFunc(e.cfg.InitialSyncDelay, e.Trigger)
}

// Close stops reacting to connectivity changes, cancels running background
// passes and waits for them to return.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	e.bgCancel()
	e.bg.Wait()
}

// Trigger starts a best-effort pass in the background when online.
func (e *Engine) Trigger() {
	if !e.observer.Online() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if err := e.SyncAll(e.bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn(e.bgCtx, "background sync failed", "error", err)
		}
	}()
}

// OnStatusChange registers l and returns a function removing it. Listeners
// run synchronously, in registration order.
func (e *Engine) OnStatusChange(l Listener) (unsubscribe func()) {
	return e.subs.add(l)
}

func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

// LastSync returns the time of the last completed pass, zero if none.
func (e *Engine) LastSync(ctx context.Context) (time.Time, error) {
	return e.store.LastSync(ctx)
}

func (e *Engine) setStatus(ev Event) {
	e.statusMu.Lock()
	e.status = ev.Status
	e.statusMu.Unlock()
	e.subs.emit(ev)
}

// SyncAll runs one pass. It does nothing and returns nil when offline or
// when another pass is running.
func (e *Engine) SyncAll(ctx context.Context) error {
	if !e.observer.Online() {
		return nil
	}
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Debug(ctx, "sync already in progress, skipped")
		return nil
	}
	defer e.busy.Store(false)

	e.setStatus(Event{Status: StatusSyncing})

	start := e.now()
	err := e.pass(ctx)
	if err != nil {
		e.logger.Error(ctx, "sync failed", "error", err)
		e.setStatus(Event{Status: StatusError, Err: err})
		e.setStatus(Event{Status: StatusIdle})
		return err
	}

	e.logger.Info(ctx, "sync completed", "elapsed", e.now().Sub(start))
	e.setStatus(Event{Status: StatusIdle})
	return nil
}

func (e *Engine) pass(ctx context.Context) error {
	if err := e.drain(ctx); err != nil {
		return fmt.Errorf("failed to push pending changes: %w", err)
	}

	for _, table := range entities.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := e.remote.Select(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", table, err)
		}
		if _, err := e.MergeServerRows(ctx, table, rows); err != nil {
			return err
		}
	}

	return e.store.SetLastSync(ctx, e.now())
}

// drain replays the queue oldest first. A change that fails has its retry
// counter bumped and is dropped once the counter reaches MaxRetries. The
// drain stops at the first failure caused by the remote being unreachable.
func (e *Engine) drain(ctx context.Context) error {
	changes, err := e.store.GetPendingChanges(ctx)
	if err != nil {
		return err
	}

	replayed := 0
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}

		rerr := e.replay(ctx, ch)
		if rerr == nil {
			replayed++
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		e.logger.Warn(ctx, "replay failed",
			"change", ch.ID,
			"action", ch.Action,
			"table", ch.Table,
			"record", ch.RecordID,
			"error", rerr,
		)

		if errors.Is(rerr, client.ErrNotFound) && ch.Action == models.ActionUpdate {
			// The server row is gone; nothing left to update.
			ch.Retries++
			if err := e.drop(ctx, ch, rerr); err != nil {
				return err
			}
			continue
		}

		retries, err := e.store.IncrementRetries(ctx, ch.ID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if retries >= e.cfg.MaxRetries {
			ch.Retries = retries
			if err := e.drop(ctx, ch, rerr); err != nil {
				return err
			}
		}

		if client.IsRetryable(rerr) {
			return rerr
		}
	}

	if replayed > 0 {
		e.logger.Info(ctx, "pending changes pushed", "count", replayed)
	}
	return nil
}

func (e *Engine) drop(ctx context.Context, ch models.PendingChange, cause error) error {
	dropped, err := e.store.DropChange(ctx, ch)
	if err != nil || !dropped {
		return err
	}
	e.logger.Error(ctx, "pending change dropped",
		"change", ch.ID,
		"action", ch.Action,
		"table", ch.Table,
		"record", ch.RecordID,
		"retries", ch.Retries,
		"error", cause,
	)
	e.subs.emit(Event{Status: e.Status(), Err: cause, Dropped: &ch})
	return nil
}

// replay sends one change to the remote and settles it locally.
func (e *Engine) replay(ctx context.Context, ch models.PendingChange) error {
	switch ch.Action {
	case models.ActionCreate:
		return e.replayCreate(ctx, ch)

	case models.ActionUpdate:
		body, err := json.Marshal(ch.Payload)
		if err != nil {
			return err
		}
		row, err := e.remote.Update(ctx, ch.Table, ch.RecordID, body)
		if err != nil {
			return err
		}
		return e.complete(ctx, ch, row)

	case models.ActionDelete:
		err := e.remote.Delete(ctx, ch.Table, ch.RecordID)
		if err != nil && !errors.Is(err, client.ErrNotFound) {
			return err
		}
		return e.store.CompleteChange(ctx, ch, nil)
	}
	return fmt.Errorf("unknown action %q", ch.Action)
}

// replayCreate inserts the payload. Records created offline carry a
// temporary id, which is left out so that the server assigns the real one.
func (e *Engine) replayCreate(ctx context.Context, ch models.PendingChange) error {
	payload, err := entities.Merge(ch.Payload, nil)
	if err != nil {
		return err
	}
	if models.IsTempID(payload.GetID()) {
		payload.SetID("")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	row, err := e.remote.Insert(ctx, ch.Table, body)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && payload.GetID() != "" {
		// Inserted by an earlier attempt whose response was lost.
		row, err = e.remote.Update(ctx, ch.Table, payload.GetID(), body)
	}
	if err != nil {
		return err
	}
	return e.complete(ctx, ch, row)
}

func (e *Engine) complete(ctx context.Context, ch models.PendingChange, row json.RawMessage) error {
	canonical, _, err := recordFromRow(ch.Table, row)
	if err != nil {
		return err
	}
	return e.store.CompleteChange(ctx, ch, &canonical)
}

func recordFromRow(table entities.Table, row json.RawMessage) (models.Record, entities.Entity, error) {
	ent, err := entities.Decode(table, row)
	if err != nil {
		return models.Record{}, nil, err
	}
	if ent.GetID() == "" {
		return models.Record{}, nil, fmt.Errorf("%s row without id", table)
	}
	rec, err := models.NewRecord(ent, true)
	return rec, ent, err
}
