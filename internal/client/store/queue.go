package store

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// StageChange stores rec (when not nil) and queues ch in one transaction.
//
// Each record has at most one queued change. A write to a record that
// already has one is folded into it: the payload is replaced, the action
// becomes the stronger of the two and Revision is bumped, while id and
// timestamp stay. Deleting a record whose create is still queued removes
// both the record and the change; StageChange then returns nil.
//
// A change addressed to a temporary id that a sync pass has since replaced
// with the server id is staged under the server id.
func (s *Store) StageChange(ctx context.Context, rec *models.Record, ch models.PendingChange) (*models.PendingChange, error) {
	var staged *models.PendingChange

	err := s.inTx(ctx, func(ctx context.Context, r repos) error {
		var err error
		ch, rec, err = resolveAlias(ctx, r, ch, rec)
		if err != nil {
			return err
		}

		existing, err := r.pending.FindByRecord(ctx, ch.Table, ch.RecordID)
		if err != nil {
			return err
		}

		if existing == nil {
			if rec != nil {
				if err := r.records.Save(ctx, ch.Table, *rec); err != nil {
					return err
				}
			}
			if err := r.pending.Add(ctx, ch); err != nil {
				return err
			}
			staged = &ch
			return nil
		}

		merged := *existing
		merged.Revision++

		switch {
		case existing.Action == models.ActionCreate && ch.Action == models.ActionDelete:
			if err := r.pending.Remove(ctx, existing.ID); err != nil {
				return err
			}
			return r.records.Delete(ctx, ch.Table, ch.RecordID)

		case existing.Action == models.ActionDelete:
			// Nothing may follow a delete of the same record.
			staged = existing
			return nil

		case existing.Action == models.ActionCreate:
			merged.Payload = ch.Payload

		default:
			merged.Action = ch.Action
			merged.Payload = ch.Payload
		}

		if err := r.pending.Replace(ctx, merged); err != nil {
			return err
		}
		if rec != nil {
			if err := r.records.Save(ctx, ch.Table, *rec); err != nil {
				return err
			}
		}
		staged = &merged
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stage %s of %s[%s]: %w", ch.Action, ch.Table, ch.RecordID, err)
	}
	return staged, nil
}

// CompleteChange applies the outcome of a successful replay of ch.
// canonical is the row returned by the server for creates and updates and
// nil for deletes.
func (s *Store) CompleteChange(ctx context.Context, ch models.PendingChange, canonical *models.Record) error {
	err := s.inTx(ctx, func(ctx context.Context, r repos) error {
		cur, err := r.pending.Get(ctx, ch.ID)
		if err != nil {
			return err
		}

		switch {
		case cur == nil:
			// Discarded locally while the insert was in flight: the server
			// row must go too.
			if ch.Action == models.ActionCreate && canonical != nil {
				ref, err := entities.Reference(ch.Table, canonical.ID)
				if err != nil {
					return err
				}
				del, err := models.NewPendingChange(models.ActionDelete, ref, s.now())
				if err != nil {
					return err
				}
				return r.pending.Add(ctx, del)
			}
			return nil

		case cur.Revision != ch.Revision:
			// Newer local writes were folded in meanwhile; keep them queued.
			if ch.Action == models.ActionCreate && canonical != nil {
				if canonical.ID != ch.RecordID {
					if err := rekey(ctx, r, ch.Table, ch.RecordID, canonical.ID); err != nil {
						return err
					}
					if err := remember(ctx, r, ch.Table, ch.RecordID, canonical.ID); err != nil {
						return err
					}
					cur.RecordID = canonical.ID
					cur.Payload.SetID(canonical.ID)
				}
				if cur.Action == models.ActionCreate {
					cur.Action = models.ActionUpdate
				}
			}
			return r.pending.Replace(ctx, *cur)
		}

		if err := r.pending.Remove(ctx, ch.ID); err != nil {
			return err
		}

		if ch.Action == models.ActionDelete {
			return r.records.Delete(ctx, ch.Table, ch.RecordID)
		}
		if canonical == nil {
			return r.records.MarkAsSynced(ctx, ch.Table, ch.RecordID)
		}
		if canonical.ID != ch.RecordID {
			if err := r.records.Delete(ctx, ch.Table, ch.RecordID); err != nil {
				return err
			}
			if err := remember(ctx, r, ch.Table, ch.RecordID, canonical.ID); err != nil {
				return err
			}
		}

		row := *canonical
		row.Synced = true
		row.Deleted = false
		return r.records.Save(ctx, ch.Table, row)
	})
	if err != nil {
		return fmt.Errorf("failed to complete change %s: %w", ch.ID, err)
	}
	return nil
}

// rekey moves a local record from a temporary id to the server id.
func rekey(ctx context.Context, r repos, table entities.Table, from, to string) error {
	local, err := r.records.GetByID(ctx, table, from)
	if err != nil || local == nil {
		return err
	}

	moved, err := withID(table, *local, to)
	if err != nil {
		return err
	}

	if err := r.records.Delete(ctx, table, from); err != nil {
		return err
	}
	return r.records.Save(ctx, table, moved)
}

// withID returns rec with its entity id replaced by id.
func withID(table entities.Table, rec models.Record, id string) (models.Record, error) {
	e, err := rec.Entity(table)
	if err != nil {
		return models.Record{}, err
	}
	e.SetID(id)

	moved, err := models.NewRecord(e, rec.Synced)
	if err != nil {
		return models.Record{}, err
	}
	moved.Deleted = rec.Deleted
	moved.UpdatedAt = rec.UpdatedAt
	return moved, nil
}

// remember keeps the server id a temporary id was replaced with, for
// writes that still address the record by the temporary id.
func remember(ctx context.Context, r repos, table entities.Table, tempID, id string) error {
	if !models.IsTempID(tempID) {
		return nil
	}
	return r.metadata.Set(ctx, metadata.AliasKey(table, tempID), []byte(id))
}

func lookupAlias(ctx context.Context, md metadata.Repository, table entities.Table, id string) (string, error) {
	if !models.IsTempID(id) {
		return id, nil
	}
	v, err := md.Get(ctx, metadata.AliasKey(table, id))
	if err != nil || v == nil {
		return id, err
	}
	return string(v), nil
}

// resolveAlias readdresses ch and rec to the server id when ch.RecordID is
// a temporary id that has already been replaced. A delete staged without a
// record soft-deletes the cached server record.
func resolveAlias(ctx context.Context, r repos, ch models.PendingChange, rec *models.Record) (models.PendingChange, *models.Record, error) {
	id, err := lookupAlias(ctx, r.metadata, ch.Table, ch.RecordID)
	if err != nil || id == ch.RecordID {
		return ch, rec, err
	}

	ch.RecordID = id
	ch.Payload.SetID(id)

	switch {
	case rec != nil:
		moved, err := withID(ch.Table, *rec, id)
		if err != nil {
			return ch, nil, err
		}
		rec = &moved

	case ch.Action == models.ActionDelete:
		local, err := r.records.GetByID(ctx, ch.Table, id)
		if err != nil {
			return ch, nil, err
		}
		if local != nil {
			local.Synced = false
			local.Deleted = true
			rec = local
		}
	}
	return ch, rec, nil
}

// DropChange removes a change that ran out of retries and settles its
// record: a record created locally is deleted, any other record is marked
// synced again so that the next download overwrites it with server state.
// It reports false when the change was already gone or had been rewritten
// by a newer local write, in which case nothing is dropped.
func (s *Store) DropChange(ctx context.Context, ch models.PendingChange) (bool, error) {
	dropped := false

	err := s.inTx(ctx, func(ctx context.Context, r repos) error {
		cur, err := r.pending.Get(ctx, ch.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Revision != ch.Revision {
			return nil
		}

		if err := r.pending.Remove(ctx, ch.ID); err != nil {
			return err
		}
		dropped = true

		local, err := r.records.GetByID(ctx, ch.Table, ch.RecordID)
		if err != nil || local == nil {
			return err
		}

		if cur.Action == models.ActionCreate {
			return r.records.Delete(ctx, ch.Table, ch.RecordID)
		}

		local.Synced = true
		local.Deleted = false
		return r.records.Save(ctx, ch.Table, *local)
	})
	if err != nil {
		return false, fmt.Errorf("failed to drop change %s: %w", ch.ID, err)
	}
	return dropped, nil
}

// KeepLocal decides a conflict between a local record with unsynced changes
// and the server row with the same id. It returns true to keep the local
// record.
type KeepLocal func(local, server models.Record) bool

// ApplySnapshot mirrors a full server result set into table and returns the
// resulting view in the order of recs.
//
// Synced records absent from recs are removed. A server row colliding with
// an unsynced local record is passed to keepLocal (nil means the server
// always wins): a kept record stays as it is, queued change included, and
// replaces the server row in the view unless it is soft-deleted; otherwise
// the server row overwrites it and its queued change is discarded. Unsynced
// records not listed in recs are left alone and are not part of the view.
func (s *Store) ApplySnapshot(ctx context.Context, table entities.Table, recs []models.Record, keepLocal KeepLocal) ([]models.Record, error) {
	var view []models.Record

	err := s.inTx(ctx, func(ctx context.Context, r repos) error {
		unsynced, err := r.records.GetUnsynced(ctx, table)
		if err != nil {
			return err
		}
		local := make(map[string]models.Record, len(unsynced))
		for _, u := range unsynced {
			local[u.ID] = u
		}

		keep := make(map[string]struct{}, len(recs))
		for _, rec := range recs {
			keep[rec.ID] = struct{}{}
		}

		synced, err := r.records.SyncedIDs(ctx, table)
		if err != nil {
			return err
		}
		for _, id := range synced {
			if _, ok := keep[id]; ok {
				continue
			}
			if err := r.records.Delete(ctx, table, id); err != nil {
				return err
			}
		}

		view = make([]models.Record, 0, len(recs))
		for _, rec := range recs {
			if l, ok := local[rec.ID]; ok {
				if keepLocal != nil && keepLocal(l, rec) {
					if !l.Deleted {
						view = append(view, l)
					}
					continue
				}
				if err := r.pending.RemoveByRecord(ctx, table, rec.ID); err != nil {
					return err
				}
			}

			rec.Synced = true
			rec.Deleted = false
			if err := r.records.Save(ctx, table, rec); err != nil {
				return err
			}
			view = append(view, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s snapshot: %w", table, err)
	}
	return view, nil
}
