// Package pending persists the mutation queue: changes made locally that the
// server has not acknowledged yet.
package pending

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Repository describes storage operations on pending changes.
type Repository interface {
	Add(ctx context.Context, ch models.PendingChange) error

	// List returns every change ordered by timestamp ascending; changes with
	// equal timestamps keep insertion order.
	List(ctx context.Context) ([]models.PendingChange, error)

	// Get returns (nil, nil) when no change has the given id.
	Get(ctx context.Context, id string) (*models.PendingChange, error)

	// FindByRecord returns the oldest change targeting the record, or (nil, nil).
	FindByRecord(ctx context.Context, table entities.Table, recordID string) (*models.PendingChange, error)

	// Replace overwrites action, record id, payload and revision of the
	// change with ch.ID. Timestamp and retries are left untouched.
	Replace(ctx context.Context, ch models.PendingChange) error

	Remove(ctx context.Context, id string) error
	RemoveByRecord(ctx context.Context, table entities.Table, recordID string) error

	// IncrementRetries bumps the retry counter and returns its new value.
	IncrementRetries(ctx context.Context, id string) (int, error)

	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
