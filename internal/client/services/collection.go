package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Collection is the facade over one entity table. E is the pointer type
// of the table's entity, e.g. *entities.Tender.
type Collection[E entities.Entity] struct {
	svc   *DataService
	table entities.Table
}

func newCollection[E entities.Entity](svc *DataService, table entities.Table) *Collection[E] {
	return &Collection[E]{svc: svc, table: table}
}

// List returns the table, newest first. Online it returns the server rows
// (local edits that won a conflict replace their server row) and mirrors
// them locally; offline, or when the remote fails, it returns the cached
// rows that are not soft-deleted.
func (c *Collection[E]) List(ctx context.Context) ([]E, error) {
	s := c.svc

	if s.observer.Online() {
		rows, err := s.remote.Select(ctx, c.table)
		if err == nil {
			view, err := s.engine.MergeServerRows(ctx, c.table, rows)
			if err != nil {
				return nil, err
			}
			return cast[E](view)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn(ctx, "remote read failed, serving cache", "table", c.table, "error", err)
	}

	recs, err := s.store.GetAll(ctx, c.table)
	if err != nil {
		return nil, err
	}

	out := make([]entities.Entity, 0, len(recs))
	for _, rec := range recs {
		if rec.Deleted {
			continue
		}
		e, err := rec.Entity(c.table)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b entities.Entity) int {
		return b.Created().Compare(a.Created())
	})
	return cast[E](out)
}

// Create stores draft and returns the stored entity. Online the server
// assigns the id; otherwise the entity gets a temporary id and its
// creation is queued. created_at and updated_at are set to now.
func (c *Collection[E]) Create(ctx context.Context, draft E) (E, error) {
	var zero E
	s := c.svc

	ent, err := entities.Merge(draft, nil)
	if err != nil {
		return zero, err
	}
	now := s.now()
	ent.Touch(now)
	if err := s.validator.Validate(ent); err != nil {
		return zero, err
	}

	if s.observer.Online() {
		body, err := json.Marshal(ent)
		if err != nil {
			return zero, err
		}
		row, err := s.remote.Insert(ctx, c.table, body)
		if err == nil {
			return c.saveSynced(ctx, row)
		}
		s.logger.Warn(ctx, "remote insert failed, queued", "table", c.table, "error", err)
	}

	if ent.GetID() == "" {
		ent.SetID(models.NewTempID(now))
	}
	if err := s.engine.QueueCreate(ctx, ent); err != nil {
		return zero, err
	}
	return as[E](ent)
}

// Update applies a shallow patch (JSON field names) to the record with id.
// It returns the zero E and no error when the record is neither reachable
// remotely nor cached locally. Records with queued changes are always
// updated through the queue so their changes replay in order. A temporary
// id keeps addressing its record after a sync has replaced it.
func (c *Collection[E]) Update(ctx context.Context, id string, patch map[string]any) (E, error) {
	var zero E
	s := c.svc

	patch = withoutID(patch)
	now := s.now()

	id, err := s.store.ResolveID(ctx, c.table, id)
	if err != nil {
		return zero, err
	}
	local, err := s.store.GetByID(ctx, c.table, id)
	if err != nil {
		return zero, err
	}
	if local != nil && local.Deleted {
		return zero, nil
	}

	if s.observer.Online() && (local == nil || local.Synced) && !models.IsTempID(id) {
		remotePatch := make(map[string]any, len(patch)+1)
		for k, v := range patch {
			remotePatch[k] = v
		}
		remotePatch["updated_at"] = now.UTC()

		body, err := json.Marshal(remotePatch)
		if err != nil {
			return zero, err
		}
		row, err := s.remote.Update(ctx, c.table, id, body)
		if err == nil {
			return c.saveSynced(ctx, row)
		}
		s.logger.Warn(ctx, "remote update failed, queued", "table", c.table, "record", id, "error", err)
	}

	if local == nil {
		return zero, nil
	}

	cur, err := local.Entity(c.table)
	if err != nil {
		return zero, err
	}
	merged, err := entities.Merge(cur, patch)
	if err != nil {
		return zero, fmt.Errorf("failed to merge update of %s[%s]: %w", c.table, id, err)
	}
	merged.SetID(id)
	merged.Touch(now)
	if err := s.validator.Validate(merged); err != nil {
		return zero, err
	}

	if err := s.engine.QueueUpdate(ctx, merged); err != nil {
		return zero, err
	}
	return as[E](merged)
}

// Delete removes the record with id. Online it is deleted remotely and then
// locally; otherwise it is soft-deleted and the removal queued. It reports
// true unless a storage error occurred.
func (c *Collection[E]) Delete(ctx context.Context, id string) (bool, error) {
	s := c.svc

	id, err := s.store.ResolveID(ctx, c.table, id)
	if err != nil {
		return false, err
	}
	local, err := s.store.GetByID(ctx, c.table, id)
	if err != nil {
		return false, err
	}

	if s.observer.Online() && (local == nil || local.Synced) && !models.IsTempID(id) {
		err := s.remote.Delete(ctx, c.table, id)
		if err == nil || errors.Is(err, client.ErrNotFound) {
			if err := s.store.Delete(ctx, c.table, id); err != nil {
				return false, err
			}
			return true, nil
		}
		s.logger.Warn(ctx, "remote delete failed, queued", "table", c.table, "record", id, "error", err)
	}

	if err := s.engine.QueueDelete(ctx, c.table, id); err != nil {
		return false, err
	}
	return true, nil
}

// saveSynced caches a row returned by the server and returns it decoded.
func (c *Collection[E]) saveSynced(ctx context.Context, row json.RawMessage) (E, error) {
	var zero E

	ent, err := entities.Decode(c.table, row)
	if err != nil {
		return zero, err
	}
	rec, err := models.NewRecord(ent, true)
	if err != nil {
		return zero, err
	}
	if err := c.svc.store.Save(ctx, c.table, rec); err != nil {
		return zero, err
	}
	return as[E](ent)
}

func withoutID(patch map[string]any) map[string]any {
	if _, ok := patch["id"]; !ok {
		return patch
	}
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		if k != "id" {
			out[k] = v
		}
	}
	return out
}

func as[E entities.Entity](e entities.Entity) (E, error) {
	v, ok := e.(E)
	if !ok {
		var zero E
		return zero, fmt.Errorf("unexpected %T in %s collection", e, e.Table())
	}
	return v, nil
}

func cast[E entities.Entity](list []entities.Entity) ([]E, error) {
	out := make([]E, 0, len(list))
	for _, e := range list {
		v, err := as[E](e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
