package pending

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tendercrm/internal/client/migrations"
	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func change(t *testing.T, action models.Action, id string, at time.Time) models.PendingChange {
	t.Helper()
	tender := &entities.Tender{Name: "tender " + id}
	tender.SetID(id)
	ch, err := models.NewPendingChange(action, tender, at)
	require.NoError(t, err)
	return ch
}

func TestAddAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	ch := change(t, models.ActionCreate, "1", at)
	require.NoError(t, r.Add(ctx, ch))

	got, err := r.Get(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ch.ID, got.ID)
	assert.Equal(t, entities.Tenders, got.Table)
	assert.Equal(t, models.ActionCreate, got.Action)
	assert.Equal(t, "1", got.RecordID)
	assert.True(t, at.Equal(got.Timestamp))
	assert.Zero(t, got.Retries)

	tender, ok := got.Payload.(*entities.Tender)
	require.True(t, ok, "payload must decode to the table's entity kind")
	assert.Equal(t, "tender 1", tender.Name)
}

func TestGet_Missing_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestList_OrdersByTimestampNotInsertion(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	update := change(t, models.ActionUpdate, "1", base.Add(2*time.Millisecond))
	create := change(t, models.ActionCreate, "1", base.Add(time.Millisecond))

	require.NoError(t, r.Add(ctx, update))
	require.NoError(t, r.Add(ctx, create))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.ActionCreate, list[0].Action)
	assert.Equal(t, models.ActionUpdate, list[1].Action)
}

func TestList_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Now().UTC()

	a := change(t, models.ActionCreate, "a", at)
	b := change(t, models.ActionCreate, "b", at)
	require.NoError(t, r.Add(ctx, a))
	require.NoError(t, r.Add(ctx, b))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].RecordID)
	assert.Equal(t, "b", list[1].RecordID)
}

func TestAdd_RejectsMismatchedPayload(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	ch := change(t, models.ActionCreate, "1", time.Now())
	ch.Table = entities.Expenses

	assert.Error(t, r.Add(context.Background(), ch))
}

func TestIncrementRetries(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	ch := change(t, models.ActionCreate, "1", time.Now())
	require.NoError(t, r.Add(ctx, ch))

	for want := 1; want <= 3; want++ {
		n, err := r.IncrementRetries(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	_, err := r.IncrementRetries(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindByRecordAndReplace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Now().UTC()

	ch := change(t, models.ActionCreate, "local-1", at)
	require.NoError(t, r.Add(ctx, ch))

	found, err := r.FindByRecord(ctx, entities.Tenders, "local-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ch.ID, found.ID)

	none, err := r.FindByRecord(ctx, entities.Suppliers, "local-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	renamed := &entities.Tender{Name: "renamed"}
	renamed.SetID("srv-1")
	found.Action = models.ActionUpdate
	found.RecordID = "srv-1"
	found.Payload = renamed
	found.Revision++
	require.NoError(t, r.Replace(ctx, *found))

	got, err := r.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdate, got.Action)
	assert.Equal(t, "srv-1", got.RecordID)
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, "renamed", got.Payload.(*entities.Tender).Name)
	assert.True(t, at.Equal(got.Timestamp), "replace keeps the timestamp")

	missing := *found
	missing.ID = "missing"
	assert.ErrorIs(t, r.Replace(ctx, missing), common.ErrNotFound)
}

func TestRemove_CountAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Now().UTC()

	a := change(t, models.ActionCreate, "1", at)
	b := change(t, models.ActionUpdate, "2", at)
	c := change(t, models.ActionDelete, "3", at)
	for _, ch := range []models.PendingChange{a, b, c} {
		require.NoError(t, r.Add(ctx, ch))
	}

	require.NoError(t, r.Remove(ctx, a.ID))
	require.NoError(t, r.RemoveByRecord(ctx, entities.Tenders, "2"))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.Clear(ctx))
	n, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
