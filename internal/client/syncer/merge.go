package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// MergeServerRows mirrors a full server result set of table into the local
// store and returns the resulting view in server order.
//
// A server row whose id matches a local record with unsynced changes is a
// conflict and goes through the configured Strategy. When the server wins,
// the local record is overwritten and its queued change discarded. When the
// client wins, the local record and its queued change are kept and the local
// version replaces the server row in the view (a soft-deleted one is left
// out). Synced local records missing from rows are removed.
func (e *Engine) MergeServerRows(ctx context.Context, table entities.Table, rows []json.RawMessage) ([]entities.Entity, error) {
	recs := make([]models.Record, 0, len(rows))
	for _, raw := range rows {
		rec, _, err := recordFromRow(table, raw)
		if err != nil {
			return nil, fmt.Errorf("bad %s row from server: %w", table, err)
		}
		recs = append(recs, rec)
	}

	keepLocal := func(local, server models.Record) bool {
		winner := e.cfg.Strategy.Resolve(local, server)
		e.logger.Info(ctx, "conflict resolved",
			"table", table,
			"record", server.ID,
			"strategy", e.cfg.Strategy,
			"winner", winner,
		)
		return winner == Client
	}

	view, err := e.store.ApplySnapshot(ctx, table, recs, keepLocal)
	if err != nil {
		return nil, err
	}

	out := make([]entities.Entity, 0, len(view))
	for _, rec := range view {
		ent, err := rec.Entity(table)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}
