// Package models defines the client-side storage models of the sync layer:
// the record wrapper every cached entity is stored in and the pending
// changes that make up the mutation queue.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Record wraps one cached entity row.
type Record struct {
	// ID is the entity id, unique per table.
	ID string

	// Data is the full entity payload as JSON, opaque to the store.
	Data json.RawMessage

	// UpdatedAt is the entity's last modification time in UTC.
	UpdatedAt time.Time

	// Synced is true once the server has acknowledged exactly this state.
	Synced bool

	// Deleted marks a soft delete that has not reached the server yet.
	Deleted bool
}

// NewRecord wraps e into a Record.
func NewRecord(e entities.Entity, synced bool) (Record, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode %s %s: %w", e.Table(), e.GetID(), err)
	}
	return Record{
		ID:        e.GetID(),
		Data:      data,
		UpdatedAt: e.Updated().UTC(),
		Synced:    synced,
	}, nil
}

// Entity decodes the wrapped payload as the kind stored in table.
func (r Record) Entity(table entities.Table) (entities.Entity, error) {
	return entities.Decode(table, r.Data)
}
