// Package metadata persists the open-ended key/value metadata of the local
// store, such as the time of the last successful sync.
package metadata

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// KeyLastSync holds the ISO-8601 time of the last complete sync pass.
const KeyLastSync = "last_sync"

// AliasKey is the key holding the server id of a record that was created
// offline under the temporary id tempID.
func AliasKey(table entities.Table, tempID string) string {
	return "alias:" + string(table) + ":" + tempID
}

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
