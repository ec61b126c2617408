package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// stage writes a tender named name under id and queues action for it.
func stage(t *testing.T, s *Store, action models.Action, id, name string) *models.PendingChange {
	t.Helper()
	ctx := context.Background()

	if action == models.ActionDelete {
		ref, err := entities.Reference(entities.Tenders, id)
		require.NoError(t, err)
		ch, err := models.NewPendingChange(action, ref, time.Now())
		require.NoError(t, err)

		var rec *models.Record
		if cur, err := s.GetByID(ctx, entities.Tenders, id); err == nil && cur != nil {
			cur.Synced = false
			cur.Deleted = true
			rec = cur
		}
		staged, err := s.StageChange(ctx, rec, ch)
		require.NoError(t, err)
		return staged
	}

	rec := tenderRecord(t, id, name, false)
	ch, err := models.NewPendingChange(action, mustEntity(t, rec), time.Now())
	require.NoError(t, err)
	staged, err := s.StageChange(ctx, &rec, ch)
	require.NoError(t, err)
	return staged
}

func pendingName(t *testing.T, ch models.PendingChange) string {
	t.Helper()
	tender, ok := ch.Payload.(*entities.Tender)
	require.True(t, ok)
	return tender.Name
}

func queue(t *testing.T, s *Store) []models.PendingChange {
	t.Helper()
	list, err := s.GetPendingChanges(context.Background())
	require.NoError(t, err)
	return list
}

func TestStageChange_Coalescing(t *testing.T) {
	tests := []struct {
		name       string
		first      models.Action
		second     models.Action
		wantAction models.Action
		wantName   string
	}{
		{"create then update", models.ActionCreate, models.ActionUpdate, models.ActionCreate, "second"},
		{"update then update", models.ActionUpdate, models.ActionUpdate, models.ActionUpdate, "second"},
		{"update then delete", models.ActionUpdate, models.ActionDelete, models.ActionDelete, ""},
		{"delete then update", models.ActionDelete, models.ActionUpdate, models.ActionDelete, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			if tt.first == models.ActionDelete {
				require.NoError(t, s.Save(context.Background(), entities.Tenders, tenderRecord(t, "t1", "orig", true)))
			}

			first := stage(t, s, tt.first, "t1", "first")
			require.NotNil(t, first)
			second := stage(t, s, tt.second, "t1", "second")
			require.NotNil(t, second)

			list := queue(t, s)
			require.Len(t, list, 1)
			got := list[0]
			assert.Equal(t, first.ID, got.ID)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.True(t, first.Timestamp.Equal(got.Timestamp))
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, pendingName(t, got))
				assert.Equal(t, first.Revision+1, got.Revision)
			}
		})
	}
}

func TestStageChange_CreateThenDeleteCancels(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	stage(t, s, models.ActionCreate, "local-1", "draft")
	staged := stage(t, s, models.ActionDelete, "local-1", "")
	assert.Nil(t, staged)

	assert.Empty(t, queue(t, s))
	rec, err := s.GetByID(ctx, entities.Tenders, "local-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStageChange_SeparateRecordsQueueSeparately(t *testing.T) {
	s := newStore(t)

	stage(t, s, models.ActionCreate, "a", "a")
	stage(t, s, models.ActionCreate, "b", "b")
	stage(t, s, models.ActionUpdate, "a", "a2")

	list := queue(t, s)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].RecordID)
	assert.Equal(t, "b", list[1].RecordID)
}

func TestCompleteChange_CreateRekeysTempID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ch := stage(t, s, models.ActionCreate, "local-1", "new")
	canonical := tenderRecord(t, "srv-1", "new", true)

	require.NoError(t, s.CompleteChange(ctx, *ch, &canonical))

	assert.Empty(t, queue(t, s))

	old, err := s.GetByID(ctx, entities.Tenders, "local-1")
	require.NoError(t, err)
	assert.Nil(t, old)

	got, err := s.GetByID(ctx, entities.Tenders, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Synced)
}

func TestStageChange_TempIDReplacedBySync(t *testing.T) {
	ctx := context.Background()

	// synced returns a store whose create of local-1 has been replayed as
	// srv-1, and the local-1 record as read before that happened.
	synced := func(t *testing.T) (*Store, models.Record) {
		s := newStore(t)
		ch := stage(t, s, models.ActionCreate, "local-1", "new")
		stale, err := s.GetByID(ctx, entities.Tenders, "local-1")
		require.NoError(t, err)
		require.NotNil(t, stale)

		canonical := tenderRecord(t, "srv-1", "new", true)
		require.NoError(t, s.CompleteChange(ctx, *ch, &canonical))
		return s, *stale
	}

	t.Run("resolve", func(t *testing.T) {
		s, _ := synced(t)

		id, err := s.ResolveID(ctx, entities.Tenders, "local-1")
		require.NoError(t, err)
		assert.Equal(t, "srv-1", id)

		id, err = s.ResolveID(ctx, entities.Suppliers, "local-1")
		require.NoError(t, err)
		assert.Equal(t, "local-1", id)

		id, err = s.ResolveID(ctx, entities.Tenders, "t9")
		require.NoError(t, err)
		assert.Equal(t, "t9", id)
	})

	t.Run("update", func(t *testing.T) {
		s, stale := synced(t)

		edited := mustEntity(t, stale).(*entities.Tender)
		edited.Name = "edited"
		rec, err := models.NewRecord(edited, false)
		require.NoError(t, err)
		ch, err := models.NewPendingChange(models.ActionUpdate, edited, time.Now())
		require.NoError(t, err)

		staged, err := s.StageChange(ctx, &rec, ch)
		require.NoError(t, err)
		require.NotNil(t, staged)
		assert.Equal(t, "srv-1", staged.RecordID)
		assert.Equal(t, "srv-1", staged.Payload.GetID())

		list := queue(t, s)
		require.Len(t, list, 1)
		assert.Equal(t, models.ActionUpdate, list[0].Action)
		assert.Equal(t, "srv-1", list[0].RecordID)
		assert.Equal(t, "edited", pendingName(t, list[0]))

		old, err := s.GetByID(ctx, entities.Tenders, "local-1")
		require.NoError(t, err)
		assert.Nil(t, old)

		got, err := s.GetByID(ctx, entities.Tenders, "srv-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Synced)
		assert.Equal(t, "edited", mustEntity(t, *got).(*entities.Tender).Name)
	})

	for _, withRecord := range []bool{true, false} {
		t.Run(fmt.Sprintf("delete with record %v", withRecord), func(t *testing.T) {
			s, stale := synced(t)

			var rec *models.Record
			if withRecord {
				stale.Synced = false
				stale.Deleted = true
				rec = &stale
			}
			ref, err := entities.Reference(entities.Tenders, "local-1")
			require.NoError(t, err)
			ch, err := models.NewPendingChange(models.ActionDelete, ref, time.Now())
			require.NoError(t, err)

			staged, err := s.StageChange(ctx, rec, ch)
			require.NoError(t, err)
			require.NotNil(t, staged)

			list := queue(t, s)
			require.Len(t, list, 1)
			assert.Equal(t, models.ActionDelete, list[0].Action)
			assert.Equal(t, "srv-1", list[0].RecordID)

			old, err := s.GetByID(ctx, entities.Tenders, "local-1")
			require.NoError(t, err)
			assert.Nil(t, old)

			got, err := s.GetByID(ctx, entities.Tenders, "srv-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.Deleted)
			assert.False(t, got.Synced)
		})
	}
}

func TestCompleteChange_NewerWriteStaysQueued(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inFlight := stage(t, s, models.ActionCreate, "local-1", "v1")
	stage(t, s, models.ActionUpdate, "local-1", "v2")

	canonical := tenderRecord(t, "srv-1", "v1", true)
	require.NoError(t, s.CompleteChange(ctx, *inFlight, &canonical))

	list := queue(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, models.ActionUpdate, list[0].Action)
	assert.Equal(t, "srv-1", list[0].RecordID)
	assert.Equal(t, "srv-1", list[0].Payload.GetID())
	assert.Equal(t, "v2", pendingName(t, list[0]))

	got, err := s.GetByID(ctx, entities.Tenders, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Synced)

	old, err := s.GetByID(ctx, entities.Tenders, "local-1")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestCompleteChange_DiscardedCreateQueuesServerDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inFlight := stage(t, s, models.ActionCreate, "local-1", "oops")
	assert.Nil(t, stage(t, s, models.ActionDelete, "local-1", ""))

	canonical := tenderRecord(t, "srv-1", "oops", true)
	require.NoError(t, s.CompleteChange(ctx, *inFlight, &canonical))

	list := queue(t, s)
	require.Len(t, list, 1)
	assert.Equal(t, models.ActionDelete, list[0].Action)
	assert.Equal(t, "srv-1", list[0].RecordID)
}

func TestCompleteChange_Delete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "t1", "gone", true)))
	ch := stage(t, s, models.ActionDelete, "t1", "")

	rec, err := s.GetByID(ctx, entities.Tenders, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Deleted)

	require.NoError(t, s.CompleteChange(ctx, *ch, nil))

	rec, err = s.GetByID(ctx, entities.Tenders, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, queue(t, s))
}

func TestDropChange(t *testing.T) {
	ctx := context.Background()

	t.Run("create removes record", func(t *testing.T) {
		s := newStore(t)
		ch := stage(t, s, models.ActionCreate, "local-1", "x")

		dropped, err := s.DropChange(ctx, *ch)
		require.NoError(t, err)
		assert.True(t, dropped)

		rec, err := s.GetByID(ctx, entities.Tenders, "local-1")
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.Empty(t, queue(t, s))
	})

	t.Run("delete restores record", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "t1", "x", true)))
		ch := stage(t, s, models.ActionDelete, "t1", "")

		dropped, err := s.DropChange(ctx, *ch)
		require.NoError(t, err)
		assert.True(t, dropped)

		rec, err := s.GetByID(ctx, entities.Tenders, "t1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.Synced)
		assert.False(t, rec.Deleted)
	})

	t.Run("rewritten change is kept", func(t *testing.T) {
		s := newStore(t)
		ch := stage(t, s, models.ActionCreate, "local-1", "x")
		stage(t, s, models.ActionUpdate, "local-1", "y")

		dropped, err := s.DropChange(ctx, *ch)
		require.NoError(t, err)
		assert.False(t, dropped)
		assert.Len(t, queue(t, s), 1)
	})
}

func TestIncrementRetries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ch := stage(t, s, models.ActionCreate, "local-1", "x")

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementRetries(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestApplySnapshot(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *Store {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "stale", "stale", true)))
		require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "kept", "old", true)))
		stage(t, s, models.ActionCreate, "local-1", "offline draft")
		require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "conflict", "old", true)))
		stage(t, s, models.ActionUpdate, "conflict", "mine")
		return s
	}
	server := func(t *testing.T) []models.Record {
		return []models.Record{
			tenderRecord(t, "kept", "fresh", true),
			tenderRecord(t, "conflict", "theirs", true),
		}
	}
	name := func(t *testing.T, rec models.Record) string {
		e, err := rec.Entity(entities.Tenders)
		require.NoError(t, err)
		return e.(*entities.Tender).Name
	}

	t.Run("server wins", func(t *testing.T) {
		s := seed(t)
		view, err := s.ApplySnapshot(ctx, entities.Tenders, server(t), nil)
		require.NoError(t, err)
		require.Len(t, view, 2)
		assert.Equal(t, "fresh", name(t, view[0]))
		assert.Equal(t, "theirs", name(t, view[1]))

		stale, err := s.GetByID(ctx, entities.Tenders, "stale")
		require.NoError(t, err)
		assert.Nil(t, stale)

		draft, err := s.GetByID(ctx, entities.Tenders, "local-1")
		require.NoError(t, err)
		require.NotNil(t, draft)
		assert.False(t, draft.Synced)

		conflict, err := s.GetByID(ctx, entities.Tenders, "conflict")
		require.NoError(t, err)
		require.NotNil(t, conflict)
		assert.True(t, conflict.Synced)
		assert.Equal(t, "theirs", name(t, *conflict))

		list := queue(t, s)
		require.Len(t, list, 1)
		assert.Equal(t, "local-1", list[0].RecordID)
	})

	t.Run("client wins", func(t *testing.T) {
		s := seed(t)
		keep := func(local, server models.Record) bool { return true }

		view, err := s.ApplySnapshot(ctx, entities.Tenders, server(t), keep)
		require.NoError(t, err)
		require.Len(t, view, 2)
		assert.Equal(t, "mine", name(t, view[1]))
		assert.False(t, view[1].Synced)

		conflict, err := s.GetByID(ctx, entities.Tenders, "conflict")
		require.NoError(t, err)
		require.NotNil(t, conflict)
		assert.False(t, conflict.Synced)
		assert.Len(t, queue(t, s), 2)
	})

	t.Run("kept soft delete is hidden", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, entities.Tenders, tenderRecord(t, "t1", "x", true)))
		stage(t, s, models.ActionDelete, "t1", "")

		keep := func(local, server models.Record) bool { return true }
		view, err := s.ApplySnapshot(ctx, entities.Tenders, []models.Record{tenderRecord(t, "t1", "x", true)}, keep)
		require.NoError(t, err)
		assert.Empty(t, view)

		rec, err := s.GetByID(ctx, entities.Tenders, "t1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.Deleted)
	})
}
