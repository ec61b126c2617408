package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/client/client/clienttest"
	"github.com/dmitrijs2005/tendercrm/internal/client/connectivity"
	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/client/store"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Status
	for _, ev := range l.events {
		if ev.Dropped == nil {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (l *eventLog) dropped() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Dropped != nil {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	store  *store.Store
	remote *clienttest.Memory
	net    *connectivity.Manual
	engine *Engine
	log    *eventLog
}

func newHarness(t *testing.T, online bool, cfg Config) *harness {
	t.Helper()

	st := store.New(filepath.Join(t.TempDir(), "local.db"), logging.Discard())
	_, err := st.Init(context.Background())
	require.NoError(t, err)

	h := &harness{
		store:  st,
		remote: clienttest.NewMemory(),
		net:    connectivity.NewManual(online),
		log:    &eventLog{},
	}
	h.engine = New(st, h.remote, h.net, cfg, logging.Discard())
	h.engine.OnStatusChange(h.log.add)

	t.Cleanup(func() {
		h.engine.Close()
		_ = st.Close()
	})
	return h
}

func (h *harness) pending(t *testing.T) []models.PendingChange {
	t.Helper()
	list, err := h.store.GetPendingChanges(context.Background())
	require.NoError(t, err)
	return list
}

func newTender(id, name string, at time.Time) *entities.Tender {
	tender := &entities.Tender{Name: name}
	tender.SetID(id)
	tender.Touch(at)
	return tender
}

func serverTender(t *testing.T, raw json.RawMessage) *entities.Tender {
	t.Helper()
	e, err := entities.Decode(entities.Tenders, raw)
	require.NoError(t, err)
	return e.(*entities.Tender)
}

func TestSyncAll_OfflineIsNoop(t *testing.T) {
	h := newHarness(t, false, Config{})

	require.NoError(t, h.engine.SyncAll(context.Background()))
	assert.Zero(t, h.remote.Calls(clienttest.OpSelect))
	assert.Empty(t, h.log.statuses())
	assert.Equal(t, StatusIdle, h.engine.Status())
}

func TestSyncAll_OfflineCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	tempID := models.NewTempID(time.Now())
	require.NoError(t, h.engine.QueueCreate(ctx, newTender(tempID, "X", time.Now())))

	list := h.pending(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.ActionCreate, list[0].Action)

	rec, err := h.store.GetByID(ctx, entities.Tenders, tempID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Synced)

	h.net.Set(true)
	require.NoError(t, h.engine.SyncAll(ctx))

	assert.Empty(t, h.pending(t))
	unsynced, err := h.store.GetUnsyncedItems(ctx, entities.Tenders)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	rows := h.remote.Rows(entities.Tenders)
	require.Len(t, rows, 1)
	srv := serverTender(t, rows[0])
	assert.NotEqual(t, tempID, srv.ID)
	assert.False(t, models.IsTempID(srv.ID))
	assert.Equal(t, "X", srv.Name)

	all, err := h.store.GetAll(ctx, entities.Tenders)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, srv.ID, all[0].ID)
	assert.True(t, all[0].Synced)

	last, err := h.engine.LastSync(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
	assert.Equal(t, []Status{StatusSyncing, StatusIdle}, h.log.statuses())
}

func TestSyncAll_ReplaysOldestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{})
	base := time.Now().Add(-time.Minute)

	update, err := models.NewPendingChange(models.ActionUpdate, newTender("t1", "v2", base.Add(time.Second)), base.Add(2*time.Second))
	require.NoError(t, err)
	create, err := models.NewPendingChange(models.ActionCreate, newTender("t1", "v1", base), base.Add(time.Second))
	require.NoError(t, err)

	// stored out of order
	require.NoError(t, h.store.AddPendingChange(ctx, update))
	require.NoError(t, h.store.AddPendingChange(ctx, create))

	var ops []clienttest.Op
	h.remote.Hook = func(op clienttest.Op, _ entities.Table) {
		if op == clienttest.OpInsert || op == clienttest.OpUpdate {
			ops = append(ops, op)
		}
	}

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Equal(t, []clienttest.Op{clienttest.OpInsert, clienttest.OpUpdate}, ops)
	assert.Empty(t, h.pending(t))
	assert.Equal(t, "v2", serverTender(t, h.remote.Get(entities.Tenders, "t1")).Name)
}

func TestSyncAll_DropsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	tempID := models.NewTempID(time.Now())
	require.NoError(t, h.engine.QueueCreate(ctx, newTender(tempID, "bad", time.Now())))
	h.net.Set(true)

	rejected := &client.APIError{StatusCode: 422, Message: "invalid"}
	h.remote.FailNext(clienttest.OpInsert, rejected, rejected, rejected, rejected, rejected, rejected)

	for i := 1; i < DefaultMaxRetries; i++ {
		require.NoError(t, h.engine.SyncAll(ctx))
		list := h.pending(t)
		require.Len(t, list, 1)
		assert.Equal(t, i, list[0].Retries)
	}
	assert.Empty(t, h.log.dropped())

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Empty(t, h.pending(t))

	dropped := h.log.dropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, tempID, dropped[0].Dropped.RecordID)
	assert.Equal(t, DefaultMaxRetries, dropped[0].Dropped.Retries)
	assert.ErrorIs(t, dropped[0].Err, client.ErrRejected)

	rec, err := h.store.GetByID(ctx, entities.Tenders, tempID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Equal(t, DefaultMaxRetries, h.remote.Calls(clienttest.OpInsert))
}

func TestSyncAll_CustomMaxRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{MaxRetries: 2})

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-x", "bad", time.Now())))
	h.net.Set(true)

	rejected := &client.APIError{StatusCode: 400}
	h.remote.FailNext(clienttest.OpInsert, rejected, rejected)

	require.NoError(t, h.engine.SyncAll(ctx))
	require.Len(t, h.pending(t), 1)
	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Empty(t, h.pending(t))
	assert.Len(t, h.log.dropped(), 1)
}

func TestSyncAll_UnavailableFailsPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-1", "a", time.Now())))
	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-2", "b", time.Now())))
	h.net.Set(true)

	h.remote.FailNext(clienttest.OpInsert, fmt.Errorf("%w: connection reset", client.ErrUnavailable))

	err := h.engine.SyncAll(ctx)
	require.ErrorIs(t, err, client.ErrUnavailable)

	assert.Equal(t, 1, h.remote.Calls(clienttest.OpInsert))
	assert.Zero(t, h.remote.Calls(clienttest.OpSelect))
	list := h.pending(t)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Retries)
	assert.Equal(t, 0, list[1].Retries)

	assert.Equal(t, []Status{StatusSyncing, StatusError, StatusIdle}, h.log.statuses())
	assert.Equal(t, StatusIdle, h.engine.Status())

	last, err := h.engine.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Empty(t, h.pending(t))
}

func TestSyncAll_SingleFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.Hook = func(op clienttest.Op, _ entities.Table) {
		if op == clienttest.OpSelect {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.engine.SyncAll(ctx) }()
	<-entered

	assert.Equal(t, StatusSyncing, h.engine.Status())
	require.NoError(t, h.engine.SyncAll(ctx))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, len(entities.Tables), h.remote.Calls(clienttest.OpSelect))
	assert.Equal(t, []Status{StatusSyncing, StatusIdle}, h.log.statuses())
}

func TestSyncAll_Canceled(t *testing.T) {
	h := newHarness(t, false, Config{})
	require.NoError(t, h.engine.QueueCreate(context.Background(), newTender("local-1", "a", time.Now())))
	h.net.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.engine.SyncAll(ctx)
	require.ErrorIs(t, err, context.Canceled)

	list := h.pending(t)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].Retries)
}

func TestSyncAll_UpdateOfVanishedRowIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	at := time.Now().Add(-time.Hour)
	orig := newTender("t1", "orig", at)
	rec, err := models.NewRecord(orig, true)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, entities.Tenders, rec))

	require.NoError(t, h.engine.QueueUpdate(ctx, newTender("t1", "edited", at.Add(time.Minute))))
	h.net.Set(true)

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Empty(t, h.pending(t))

	dropped := h.log.dropped()
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0].Err, client.ErrNotFound)
	assert.Equal(t, 1, dropped[0].Dropped.Retries)

	got, err := h.store.GetByID(ctx, entities.Tenders, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncAll_Delete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	at := time.Now().Add(-time.Hour)
	h.remote.Seed(newTender("t1", "doomed", at))
	rec, err := models.NewRecord(newTender("t1", "doomed", at), true)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, entities.Tenders, rec))

	require.NoError(t, h.engine.QueueDelete(ctx, entities.Tenders, "t1"))

	local, err := h.store.GetByID(ctx, entities.Tenders, "t1")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.True(t, local.Deleted)
	assert.False(t, local.Synced)

	h.net.Set(true)
	require.NoError(t, h.engine.SyncAll(ctx))

	assert.Nil(t, h.remote.Get(entities.Tenders, "t1"))
	local, err = h.store.GetByID(ctx, entities.Tenders, "t1")
	require.NoError(t, err)
	assert.Nil(t, local)
	assert.Empty(t, h.pending(t))
}

func TestQueueDelete_DiscardsUnsentCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-1", "draft", time.Now())))
	require.NoError(t, h.engine.QueueDelete(ctx, entities.Tenders, "local-1"))

	assert.Empty(t, h.pending(t))
	rec, err := h.store.GetByID(ctx, entities.Tenders, "local-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSyncAll_EditDuringInsertIsKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{})

	at := time.Now().Add(-time.Minute)
	tempID := models.NewTempID(time.Now())
	require.NoError(t, h.engine.QueueCreate(ctx, newTender(tempID, "v1", at)))
	h.net.Set(true)

	var once sync.Once
	h.remote.Hook = func(op clienttest.Op, _ entities.Table) {
		if op == clienttest.OpInsert {
			once.Do(func() {
				// offline for the edit so it does not spawn a pass of its own
				h.net.Set(false)
				require.NoError(t, h.engine.QueueUpdate(ctx, newTender(tempID, "v2", at.Add(time.Second))))
				h.net.Set(true)
			})
		}
	}

	require.NoError(t, h.engine.SyncAll(ctx))

	rows := h.remote.Rows(entities.Tenders)
	require.Len(t, rows, 1)
	srv := serverTender(t, rows[0])
	assert.Equal(t, "v1", srv.Name)

	list := h.pending(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.ActionUpdate, list[0].Action)
	assert.Equal(t, srv.ID, list[0].RecordID)

	local, err := h.store.GetByID(ctx, entities.Tenders, srv.ID)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.False(t, local.Synced)

	stale, err := h.store.GetByID(ctx, entities.Tenders, tempID)
	require.NoError(t, err)
	assert.Nil(t, stale)

	require.NoError(t, h.engine.SyncAll(ctx))
	assert.Empty(t, h.pending(t))
	assert.Equal(t, "v2", serverTender(t, h.remote.Get(entities.Tenders, srv.ID)).Name)
}

func TestSyncAll_ConflictResolution(t *testing.T) {
	serverAt := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		strategy Strategy
		localAt  time.Time
		want     string
	}{
		{"lww local newer", LastWriteWins, serverAt.Add(time.Minute), "local"},
		{"lww server newer", LastWriteWins, serverAt.Add(-time.Minute), "server"},
		{"lww tie", LastWriteWins, serverAt, "server"},
		{"server wins", ServerWins, serverAt.Add(time.Minute), "server"},
		{"client wins", ClientWins, serverAt.Add(-time.Minute), "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, false, Config{Strategy: tt.strategy})

			h.remote.Seed(newTender("t1", "server", serverAt))
			require.NoError(t, h.engine.QueueUpdate(ctx, newTender("t1", "local", tt.localAt)))
			h.net.Set(true)

			// keep the local edit unsynced so the download sees the conflict
			h.remote.FailNext(clienttest.OpUpdate, &client.APIError{StatusCode: 400})
			require.NoError(t, h.engine.SyncAll(ctx))

			rec, err := h.store.GetByID(ctx, entities.Tenders, "t1")
			require.NoError(t, err)
			require.NotNil(t, rec)
			e, err := rec.Entity(entities.Tenders)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.(*entities.Tender).Name)

			if tt.want == "local" {
				assert.False(t, rec.Synced)
				assert.Len(t, h.pending(t), 1)
			} else {
				assert.True(t, rec.Synced)
				assert.Empty(t, h.pending(t))
			}
		})
	}
}

func TestMergeServerRows_View(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{Strategy: ClientWins})

	stale, err := models.NewRecord(newTender("stale", "stale", time.Now()), true)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, entities.Tenders, stale))

	rows := []json.RawMessage{
		json.RawMessage(`{"id":"b","name":"B"}`),
		json.RawMessage(`{"id":"a","name":"A"}`),
	}
	view, err := h.engine.MergeServerRows(ctx, entities.Tenders, rows)
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.Equal(t, "b", view[0].GetID())
	assert.Equal(t, "a", view[1].GetID())

	got, err := h.store.GetByID(ctx, entities.Tenders, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = h.engine.MergeServerRows(ctx, entities.Tenders, []json.RawMessage{json.RawMessage(`{"name":"no id"}`)})
	assert.Error(t, err)
}

func TestOnStatusChange_OrderAndUnsubscribe(t *testing.T) {
	h := newHarness(t, true, Config{})

	var mu sync.Mutex
	var calls []string
	record := func(name string) Listener {
		return func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+string(ev.Status))
		}
	}

	unsubA := h.engine.OnStatusChange(record("a"))
	h.engine.OnStatusChange(record("b"))

	require.NoError(t, h.engine.SyncAll(context.Background()))
	unsubA()
	require.NoError(t, h.engine.SyncAll(context.Background()))

	assert.Equal(t, []string{
		"a:syncing", "b:syncing", "a:idle", "b:idle",
		"b:syncing", "b:idle",
	}, calls)
}

func TestStart_SyncsWhenConnectionReturns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, Config{InitialSyncDelay: time.Hour})
	h.engine.Start()

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-1", "queued", time.Now())))
	assert.Zero(t, h.remote.Calls(clienttest.OpInsert))

	h.net.Set(true)
	require.Eventually(t, func() bool {
		last, err := h.engine.LastSync(ctx)
		return err == nil && !last.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.pending(t))

	h.net.Set(false)
	assert.Equal(t, StatusIdle, h.engine.Status())
	statuses := h.log.statuses()
	assert.Equal(t, StatusIdle, statuses[len(statuses)-1])
}

func TestStart_InitialSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{InitialSyncDelay: 5 * time.Millisecond})
	h.remote.Seed(newTender("t1", "from server", time.Now()))

	h.engine.Start()
	require.Eventually(t, func() bool {
		n, err := h.store.Count(ctx, entities.Tenders)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_OnlineTriggersBackgroundSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{})

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-1", "now", time.Now())))
	require.Eventually(t, func() bool {
		return len(h.remote.Rows(entities.Tenders)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_StopsTriggers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, Config{})
	h.engine.Start()
	h.engine.Close()
	h.engine.Close()

	require.NoError(t, h.engine.QueueCreate(ctx, newTender("local-1", "late", time.Now())))
	h.net.Set(false)
	h.net.Set(true)
	assert.Zero(t, h.remote.Calls(clienttest.OpInsert))
	assert.Len(t, h.pending(t), 1)
}

// syncBeforeStage runs a full pass right before the next staged change, the
// way a background pass started by an earlier write can.
type syncBeforeStage struct {
	*store.Store
	t      *testing.T
	net    *connectivity.Manual
	engine *Engine
	armed  bool
}

func (s *syncBeforeStage) StageChange(ctx context.Context, rec *models.Record, ch models.PendingChange) (*models.PendingChange, error) {
	if s.armed {
		s.armed = false
		require.NoError(s.t, s.engine.SyncAll(ctx))
		// keep the write from starting a pass of its own
		s.net.Set(false)
	}
	return s.Store.StageChange(ctx, rec, ch)
}

func TestQueue_WriteByTempIDAfterBackgroundSync(t *testing.T) {
	ctx := context.Background()
	at := time.Now().Add(-time.Minute)

	setup := func(t *testing.T) (*harness, *Engine, string) {
		h := newHarness(t, false, Config{})
		st := &syncBeforeStage{Store: h.store, t: t, net: h.net}
		eng := New(st, h.remote, h.net, Config{}, logging.Discard())
		st.engine = eng
		t.Cleanup(eng.Close)

		tempID := models.NewTempID(time.Now())
		require.NoError(t, eng.QueueCreate(ctx, newTender(tempID, "v1", at)))

		h.net.Set(true)
		st.armed = true
		return h, eng, tempID
	}

	t.Run("delete", func(t *testing.T) {
		h, eng, tempID := setup(t)

		require.NoError(t, eng.QueueDelete(ctx, entities.Tenders, tempID))
		require.Len(t, h.remote.Rows(entities.Tenders), 1)

		h.net.Set(true)
		require.NoError(t, eng.SyncAll(ctx))

		assert.Empty(t, h.remote.Rows(entities.Tenders))
		assert.Empty(t, h.pending(t))
		all, err := h.store.GetAll(ctx, entities.Tenders)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("update", func(t *testing.T) {
		h, eng, tempID := setup(t)

		require.NoError(t, eng.QueueUpdate(ctx, newTender(tempID, "v2", at.Add(time.Second))))

		h.net.Set(true)
		require.NoError(t, eng.SyncAll(ctx))

		rows := h.remote.Rows(entities.Tenders)
		require.Len(t, rows, 1)
		srv := serverTender(t, rows[0])
		assert.Equal(t, "v2", srv.Name)
		assert.Empty(t, h.pending(t))

		stale, err := h.store.GetByID(ctx, entities.Tenders, tempID)
		require.NoError(t, err)
		assert.Nil(t, stale)
	})
}
