// Package store is the durable local store of the sync layer: cached entity
// tables, the pending-change queue and metadata, all in one SQLite file.
//
// Every method runs its own statement or transaction. Composite operations
// that must keep a record and its queued change consistent (StageChange,
// CompleteChange, DropChange, ApplySnapshot) run inside a single
// transaction, so a crash never leaves an unsynced record without a queued
// change describing it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/client/migrations"
	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tendercrm/internal/client/repositories/pending"
	"github.com/dmitrijs2005/tendercrm/internal/client/repositories/records"
	"github.com/dmitrijs2005/tendercrm/internal/dbx"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/filex"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
	"github.com/dmitrijs2005/tendercrm/internal/timex"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every operation called before Init.
var ErrNotInitialized = errors.New("local store is not initialized")

type Store struct {
	dsn    string
	logger logging.Logger
	now    func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// New returns an uninitialized store backed by the SQLite database at dsn.
func New(dsn string, logger logging.Logger) *Store {
	return &Store{
		dsn:    dsn,
		logger: logger.With("component", "local_store"),
		now:    time.Now,
	}
}

// Init opens the database and applies migrations. It is safe to call any
// number of times from any goroutine; every call returns the same handle.
func (s *Store) Init(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if _, err := filex.EnsureParentDir(s.dsn); err != nil {
		return nil, fmt.Errorf("failed to prepare local store: %w", err)
	}

	db, err := sql.Open("sqlite", withPragmas(s.dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info(ctx, "local store ready", "dsn", s.dsn)
	s.db = db
	return db, nil
}

func withPragmas(dsn string) string {
	pragmas := []string{"_pragma=busy_timeout(5000)"}
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// Close releases the database. The store may be initialized again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *Store) records() (*records.SQLiteRepository, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return records.NewSQLiteRepository(db), nil
}

func (s *Store) pending() (*pending.SQLiteRepository, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return pending.NewSQLiteRepository(db), nil
}

func (s *Store) metadata() (*metadata.SQLiteRepository, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return metadata.NewSQLiteRepository(db), nil
}

// repos is the set of repositories bound to one transaction.
type repos struct {
	records  records.Repository
	pending  pending.Repository
	metadata metadata.Repository
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, r repos) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, repos{
			records:  records.NewSQLiteRepository(tx),
			pending:  pending.NewSQLiteRepository(tx),
			metadata: metadata.NewSQLiteRepository(tx),
		})
	})
}

// GetAll returns every record of table; callers filter soft-deleted ones.
func (s *Store) GetAll(ctx context.Context, table entities.Table) ([]models.Record, error) {
	r, err := s.records()
	if err != nil {
		return nil, err
	}
	return r.GetAll(ctx, table)
}

// GetByID returns (nil, nil) when the record is not cached.
func (s *Store) GetByID(ctx context.Context, table entities.Table, id string) (*models.Record, error) {
	r, err := s.records()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, table, id)
}

func (s *Store) Save(ctx context.Context, table entities.Table, rec models.Record) error {
	r, err := s.records()
	if err != nil {
		return err
	}
	return r.Save(ctx, table, rec)
}

// SaveMany upserts all records or none of them.
func (s *Store) SaveMany(ctx context.Context, table entities.Table, recs []models.Record) error {
	return s.inTx(ctx, func(ctx context.Context, r repos) error {
		for _, rec := range recs {
			if err := r.records.Save(ctx, table, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete physically removes a record.
func (s *Store) Delete(ctx context.Context, table entities.Table, id string) error {
	r, err := s.records()
	if err != nil {
		return err
	}
	return r.Delete(ctx, table, id)
}

func (s *Store) Clear(ctx context.Context, table entities.Table) error {
	r, err := s.records()
	if err != nil {
		return err
	}
	return r.Clear(ctx, table)
}

func (s *Store) Count(ctx context.Context, table entities.Table) (int, error) {
	r, err := s.records()
	if err != nil {
		return 0, err
	}
	return r.Count(ctx, table)
}

func (s *Store) GetUnsyncedItems(ctx context.Context, table entities.Table) ([]models.Record, error) {
	r, err := s.records()
	if err != nil {
		return nil, err
	}
	return r.GetUnsynced(ctx, table)
}

func (s *Store) MarkAsSynced(ctx context.Context, table entities.Table, id string) error {
	r, err := s.records()
	if err != nil {
		return err
	}
	return r.MarkAsSynced(ctx, table, id)
}

func (s *Store) AddPendingChange(ctx context.Context, ch models.PendingChange) error {
	p, err := s.pending()
	if err != nil {
		return err
	}
	return p.Add(ctx, ch)
}

// GetPendingChanges returns the queue oldest first.
func (s *Store) GetPendingChanges(ctx context.Context) ([]models.PendingChange, error) {
	p, err := s.pending()
	if err != nil {
		return nil, err
	}
	return p.List(ctx)
}

func (s *Store) RemovePendingChange(ctx context.Context, id string) error {
	p, err := s.pending()
	if err != nil {
		return err
	}
	return p.Remove(ctx, id)
}

// IncrementRetries returns the new retry count of the change.
func (s *Store) IncrementRetries(ctx context.Context, id string) (int, error) {
	p, err := s.pending()
	if err != nil {
		return 0, err
	}
	return p.IncrementRetries(ctx, id)
}

func (s *Store) CountPendingChanges(ctx context.Context) (int, error) {
	p, err := s.pending()
	if err != nil {
		return 0, err
	}
	return p.Count(ctx)
}

func (s *Store) SetMetadata(ctx context.Context, key string, value []byte) error {
	m, err := s.metadata()
	if err != nil {
		return err
	}
	return m.Set(ctx, key, value)
}

// GetMetadata returns (nil, nil) for an unknown key.
func (s *Store) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	m, err := s.metadata()
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, key)
}

func (s *Store) ListMetadata(ctx context.Context) (map[string][]byte, error) {
	m, err := s.metadata()
	if err != nil {
		return nil, err
	}
	return m.List(ctx)
}

// ResolveID returns the server id a temporary id was replaced with by a
// completed sync, or id itself.
func (s *Store) ResolveID(ctx context.Context, table entities.Table, id string) (string, error) {
	m, err := s.metadata()
	if err != nil {
		return "", err
	}
	return lookupAlias(ctx, m, table, id)
}

// SetLastSync records t as the time of the last complete sync pass.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.SetMetadata(ctx, metadata.KeyLastSync, []byte(timex.FormatISO(t)))
}

// LastSync returns the zero time when no sync has completed yet.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	v, err := s.GetMetadata(ctx, metadata.KeyLastSync)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	t, err := timex.ParseISO(string(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s metadata: %w", metadata.KeyLastSync, err)
	}
	return t, nil
}

// ClearAll wipes every entity table, the queue and the metadata.
func (s *Store) ClearAll(ctx context.Context) error {
	err := s.inTx(ctx, func(ctx context.Context, r repos) error {
		for _, t := range entities.Tables {
			if err := r.records.Clear(ctx, t); err != nil {
				return err
			}
		}
		if err := r.pending.Clear(ctx); err != nil {
			return err
		}
		return r.metadata.Clear(ctx)
	})
	if err == nil {
		s.logger.Info(ctx, "local data cleared")
	}
	return err
}
