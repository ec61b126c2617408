package rows

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Repository persists rows of the synced tables. Missing rows are reported
// as common.ErrNotFound.
type Repository interface {
	List(ctx context.Context, table entities.Table, order Order) ([]Row, error)
	Get(ctx context.Context, table entities.Table, id string) (Row, error)
	Insert(ctx context.Context, table entities.Table, row Row) (Row, error)
	Update(ctx context.Context, table entities.Table, row Row) (Row, error)
	Delete(ctx context.Context, table entities.Table, id string) (Row, error)
}
