package client

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Client is safe for concurrent use.
type Client interface {
	// Select returns every row of table, newest first.
	Select(ctx context.Context, table entities.Table) ([]json.RawMessage, error)
	// Insert stores row and returns it as persisted by the server.
	Insert(ctx context.Context, table entities.Table, row json.RawMessage) (json.RawMessage, error)
	// Update applies a shallow patch to the row with id and returns the result.
	Update(ctx context.Context, table entities.Table, id string, patch json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, table entities.Table, id string) error
	Ping(ctx context.Context) error
	Close() error
}
