// Package services contains the offline-aware data facade of the CRM
// client: the only persistence API the rest of the application uses.
//
// Reads are network first: rows are fetched from the remote, mirrored into
// the local store and returned; when the remote cannot be reached the cached
// rows are returned instead. Writes go to the remote when it is reachable
// and are otherwise stored locally and queued for the sync engine. Neither
// path reports remote failures to the caller; storage failures are always
// returned.
package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/client/connectivity"
	"github.com/dmitrijs2005/tendercrm/internal/client/store"
	"github.com/dmitrijs2005/tendercrm/internal/client/syncer"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

// Deps are the collaborators of a DataService.
type Deps struct {
	Store    *store.Store
	Remote   client.Client
	Observer connectivity.Observer
	Engine   *syncer.Engine
	Logger   logging.Logger
}

// CacheStats counts the locally stored rows, soft-deleted ones included.
type CacheStats struct {
	Tenders        int `json:"tenders"`
	Suppliers      int `json:"suppliers"`
	Expenses       int `json:"expenses"`
	PendingChanges int `json:"pending_changes"`
}

type DataService struct {
	store     *store.Store
	remote    client.Client
	observer  connectivity.Observer
	engine    *syncer.Engine
	logger    logging.Logger
	validator *entities.Validator
	now       func() time.Time

	Tenders   *Collection[*entities.Tender]
	Suppliers *Collection[*entities.Supplier]
	Expenses  *Collection[*entities.Expense]

	preloadOnce sync.Once
	preloadWG   sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewDataService initializes the local store and, when online, starts a
// one-time background preload of every table.
func NewDataService(ctx context.Context, d Deps) (*DataService, error) {
	if _, err := d.Store.Init(ctx); err != nil {
		return nil, err
	}

	bg, cancel := context.WithCancel(context.Background())
	s := &DataService{
		store:     d.Store,
		remote:    d.Remote,
		observer:  d.Observer,
		engine:    d.Engine,
		logger:    d.Logger.With("component", "data_service"),
		validator: entities.NewValidator(),
		now:       time.Now,
		ctx:       bg,
		cancel:    cancel,
	}
	s.Tenders = newCollection[*entities.Tender](s, entities.Tenders)
	s.Suppliers = newCollection[*entities.Supplier](s, entities.Suppliers)
	s.Expenses = newCollection[*entities.Expense](s, entities.Expenses)

	if s.observer.Online() {
		s.preload()
	}
	return s, nil
}

// preload warms the cache from the remote once per service lifetime.
func (s *DataService) preload() {
	s.preloadOnce.Do(func() {
		s.preloadWG.Add(1)
		go func() {
			defer s.preloadWG.Done()

			g, ctx := errgroup.WithContext(s.ctx)
			g.Go(func() error { _, err := s.Tenders.List(ctx); return err })
			g.Go(func() error { _, err := s.Suppliers.List(ctx); return err })
			g.Go(func() error { _, err := s.Expenses.List(ctx); return err })

			if err := g.Wait(); err != nil {
				s.logger.Warn(s.ctx, "preload failed", "error", err)
				return
			}
			s.logger.Debug(s.ctx, "preload finished")
		}()
	})
}

// Close stops the preload and waits for it.
func (s *DataService) Close() {
	s.cancel()
	s.preloadWG.Wait()
}

func (s *DataService) GetTenders(ctx context.Context) ([]*entities.Tender, error) {
	return s.Tenders.List(ctx)
}

func (s *DataService) CreateTender(ctx context.Context, draft *entities.Tender) (*entities.Tender, error) {
	return s.Tenders.Create(ctx, draft)
}

// UpdateTender returns nil when the tender is neither reachable remotely
// nor cached.
func (s *DataService) UpdateTender(ctx context.Context, id string, patch map[string]any) (*entities.Tender, error) {
	return s.Tenders.Update(ctx, id, patch)
}

func (s *DataService) DeleteTender(ctx context.Context, id string) (bool, error) {
	return s.Tenders.Delete(ctx, id)
}

func (s *DataService) GetSuppliers(ctx context.Context) ([]*entities.Supplier, error) {
	return s.Suppliers.List(ctx)
}

func (s *DataService) CreateSupplier(ctx context.Context, draft *entities.Supplier) (*entities.Supplier, error) {
	return s.Suppliers.Create(ctx, draft)
}

func (s *DataService) UpdateSupplier(ctx context.Context, id string, patch map[string]any) (*entities.Supplier, error) {
	return s.Suppliers.Update(ctx, id, patch)
}

func (s *DataService) DeleteSupplier(ctx context.Context, id string) (bool, error) {
	return s.Suppliers.Delete(ctx, id)
}

func (s *DataService) GetExpenses(ctx context.Context) ([]*entities.Expense, error) {
	return s.Expenses.List(ctx)
}

func (s *DataService) CreateExpense(ctx context.Context, draft *entities.Expense) (*entities.Expense, error) {
	return s.Expenses.Create(ctx, draft)
}

func (s *DataService) UpdateExpense(ctx context.Context, id string, patch map[string]any) (*entities.Expense, error) {
	return s.Expenses.Update(ctx, id, patch)
}

func (s *DataService) DeleteExpense(ctx context.Context, id string) (bool, error) {
	return s.Expenses.Delete(ctx, id)
}

func (s *DataService) PendingChangesCount(ctx context.Context) (int, error) {
	return s.store.CountPendingChanges(ctx)
}

// SyncNow runs a sync pass and waits for it. It fails with
// common.ErrOffline when the remote is not reachable.
func (s *DataService) SyncNow(ctx context.Context) error {
	if !s.observer.Online() {
		return common.ErrOffline
	}
	return s.engine.SyncAll(ctx)
}

func (s *DataService) OnlineStatus() bool {
	return s.observer.Online()
}

// ClearAllData wipes every cached row, the pending queue and metadata.
func (s *DataService) ClearAllData(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

func (s *DataService) CacheStats(ctx context.Context) (CacheStats, error) {
	var st CacheStats
	counts := map[entities.Table]*int{
		entities.Tenders:   &st.Tenders,
		entities.Suppliers: &st.Suppliers,
		entities.Expenses:  &st.Expenses,
	}
	for table, dst := range counts {
		n, err := s.store.Count(ctx, table)
		if err != nil {
			return CacheStats{}, err
		}
		*dst = n
	}

	n, err := s.store.CountPendingChanges(ctx)
	if err != nil {
		return CacheStats{}, err
	}
	st.PendingChanges = n
	return st, nil
}
