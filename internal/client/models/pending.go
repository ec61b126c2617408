package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Action is the kind of mutation a pending change replays.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// PendingChange is one mutation not yet acknowledged by the server.
type PendingChange struct {
	ID       string
	Table    entities.Table
	Action   Action
	RecordID string

	// Payload is the full entity for creates and updates and an id-only
	// reference for deletes.
	Payload entities.Entity

	// Timestamp orders replay, oldest first.
	Timestamp time.Time

	Retries int

	// Revision grows every time another write to the same record is
	// coalesced into this change.
	Revision int
}

// NewPendingChange builds a change for payload with a fresh id of the form
// <table>_<action>_<unix millis>_<random hex>.
func NewPendingChange(action Action, payload entities.Entity, now time.Time) (PendingChange, error) {
	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		return PendingChange{}, err
	}

	now = now.UTC()
	table := payload.Table()

	return PendingChange{
		ID:        fmt.Sprintf("%s_%s_%d_%s", table, action, now.UnixMilli(), suffix),
		Table:     table,
		Action:    action,
		RecordID:  payload.GetID(),
		Payload:   payload,
		Timestamp: now,
	}, nil
}
