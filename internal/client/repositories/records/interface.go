package records

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Repository describes storage operations for cached entity records.
type Repository interface {
	// GetAll returns every record of table, soft-deleted ones included.
	GetAll(ctx context.Context, table entities.Table) ([]models.Record, error)

	// GetByID returns (nil, nil) when the record does not exist.
	GetByID(ctx context.Context, table entities.Table, id string) (*models.Record, error)

	// Save upserts rec, overwriting the stored row wholesale.
	Save(ctx context.Context, table entities.Table, rec models.Record) error

	// Delete physically removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, table entities.Table, id string) error

	Clear(ctx context.Context, table entities.Table) error

	// GetUnsynced returns records with synced = false.
	GetUnsynced(ctx context.Context, table entities.Table) ([]models.Record, error)

	MarkAsSynced(ctx context.Context, table entities.Table, id string) error

	// SyncedIDs lists ids of records with synced = true.
	SyncedIDs(ctx context.Context, table entities.Table) ([]string, error)

	Count(ctx context.Context, table entities.Table) (int, error)
}
