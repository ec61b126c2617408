package syncer

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// QueueCreate stores ent locally as unsynced, queues its creation and
// kicks off a background pass when online.
func (e *Engine) QueueCreate(ctx context.Context, ent entities.Entity) error {
	return e.queueWrite(ctx, models.ActionCreate, ent)
}

// QueueUpdate is QueueCreate for a full updated entity.
func (e *Engine) QueueUpdate(ctx context.Context, ent entities.Entity) error {
	return e.queueWrite(ctx, models.ActionUpdate, ent)
}

func (e *Engine) queueWrite(ctx context.Context, action models.Action, ent entities.Entity) error {
	rec, err := models.NewRecord(ent, false)
	if err != nil {
		return err
	}
	ch, err := models.NewPendingChange(action, ent, e.now())
	if err != nil {
		return err
	}
	if _, err := e.store.StageChange(ctx, &rec, ch); err != nil {
		return err
	}

	e.logger.Debug(ctx, "change queued", "action", action, "table", ent.Table(), "record", ent.GetID())
	e.Trigger()
	return nil
}

// QueueDelete soft-deletes the cached record, if any, and queues the
// removal. A record whose creation never reached the server is discarded
// together with its queued create.
func (e *Engine) QueueDelete(ctx context.Context, table entities.Table, id string) error {
	var rec *models.Record

	local, err := e.store.GetByID(ctx, table, id)
	if err != nil {
		return err
	}
	if local != nil {
		ent, err := local.Entity(table)
		if err != nil {
			return err
		}
		ent.Touch(e.now())

		r, err := models.NewRecord(ent, false)
		if err != nil {
			return err
		}
		r.Deleted = true
		rec = &r
	}

	ref, err := entities.Reference(table, id)
	if err != nil {
		return err
	}
	ch, err := models.NewPendingChange(models.ActionDelete, ref, e.now())
	if err != nil {
		return err
	}

	staged, err := e.store.StageChange(ctx, rec, ch)
	if err != nil {
		return err
	}
	if staged == nil {
		e.logger.Debug(ctx, "unsynced record discarded", "table", table, "record", id)
		return nil
	}

	e.logger.Debug(ctx, "change queued", "action", models.ActionDelete, "table", table, "record", id)
	e.Trigger()
	return nil
}
