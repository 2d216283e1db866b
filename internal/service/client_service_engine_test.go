package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/config"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

// stubAdapter counts pushes and lets each test script the server's answers.
type stubAdapter struct {
	mu      sync.Mutex
	pushes  int
	version int64

	createErr error
	updateErr error
	deleteErr error
	onPush    func()
}

// do snapshots the scripted error before onPush runs, so a test hook that
// reconfigures the stub affects the NEXT push, not the one in flight.
func (a *stubAdapter) do(errField *error) (int64, error) {
	a.mu.Lock()
	a.pushes++
	a.version++
	v := a.version
	err := *errField
	a.mu.Unlock()

	if a.onPush != nil {
		a.onPush()
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (a *stubAdapter) pushCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pushes
}

func (a *stubAdapter) Create(context.Context, models.EntityType, string, json.RawMessage) (int64, error) {
	return a.do(&a.createErr)
}

func (a *stubAdapter) Update(context.Context, models.EntityType, string, json.RawMessage, int64) (int64, error) {
	return a.do(&a.updateErr)
}

func (a *stubAdapter) Delete(context.Context, models.EntityType, string, int64) (int64, error) {
	return a.do(&a.deleteErr)
}

func (a *stubAdapter) Pull(context.Context, models.EntityType, *time.Time) ([]models.EntityRecord, error) {
	return nil, nil
}

func (a *stubAdapter) ListConflicts(context.Context, string) (models.ConflictListResponse, error) {
	return models.ConflictListResponse{}, nil
}

func (a *stubAdapter) ResolveConflict(context.Context, models.ResolveConflictRequest) (models.ResolveConflictResponse, error) {
	return models.ResolveConflictResponse{}, nil
}

func (a *stubAdapter) Ping(context.Context) error { return nil }

type stubChecker struct {
	online atomic.Bool
}

func (c *stubChecker) Online() bool { return c.online.Load() }

func newTestEngine(t *testing.T, srv adapter.ServerAdapter, checker OnlineChecker, maxRetries int) (SyncRunner, store.LocalStore) {
	t.Helper()

	log := logger.Nop()
	db, err := store.NewConnectSQLite(context.Background(), config.LocalDB{
		Path: filepath.Join(t.TempDir(), "agent.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	local := store.NewLocalStore(db, log)
	queue := NewQueueManager(local, maxRetries, time.Nanosecond, log)
	return NewSyncEngine(local, srv, queue, checker, 10, "cutter-3", log), local
}

func onlineChecker() *stubChecker {
	c := &stubChecker{}
	c.online.Store(true)
	return c
}

func TestSyncEngine_Sync_DrainsQueue(t *testing.T) {
	srv := &stubAdapter{}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := local.Put(ctx, models.EntityOrder, fmt.Sprintf("ord-%d", i), json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	progress, err := engine.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, progress.Processed)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, models.SyncStatusIdle, progress.Status)
	assert.Equal(t, 100, progress.Percent())
	assert.Equal(t, 3, srv.pushCount())

	remaining, err := local.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	meta, err := local.Metadata(ctx)
	require.NoError(t, err)
	assert.NotNil(t, meta.LastSyncAt, "a clean drain must record last_sync_at")
}

func TestSyncEngine_Sync_PublishesPerItemProgress(t *testing.T) {
	srv := &stubAdapter{}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := local.Put(ctx, models.EntityOrder, fmt.Sprintf("ord-%d", i), json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var events []models.SyncProgress
	engine.Observe(func(p models.SyncProgress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})

	_, err := engine.Sync(ctx)
	require.NoError(t, err)

	// start + one event per item + settle
	require.Len(t, events, 4)
	assert.Equal(t, 0, events[0].Processed)
	assert.Equal(t, 1, events[1].Processed)
	assert.Equal(t, 2, events[2].Processed)
	assert.Equal(t, models.SyncStatusIdle, events[3].Status)
}

func TestSyncEngine_Sync_ConflictRemovesItemAndCachesRecord(t *testing.T) {
	srv := &stubAdapter{
		updateErr: &adapter.ConflictError{Response: models.ConflictResponse{
			ConflictID:    "c-42",
			ServerPayload: json.RawMessage(`{"qty":9}`),
			ServerVersion: 6,
		}},
	}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	// A synced record whose next change will be rejected.
	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{"qty":1}`))
	require.NoError(t, err)
	items, err := local.DequeueBatch(ctx, 10, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	_, err = local.ConfirmSynced(ctx, items[0], 1)
	require.NoError(t, err)
	_, err = local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{"qty":2}`))
	require.NoError(t, err)

	progress, err := engine.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, progress.Conflicts)
	assert.Equal(t, models.SyncStatusErrors, progress.Status)

	remaining, err := local.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining, "a conflicted item leaves the queue")

	cached, err := local.CachedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "c-42", cached[0].ConflictID)
	assert.JSONEq(t, `{"qty":2}`, string(cached[0].LocalPayload))
	assert.JSONEq(t, `{"qty":9}`, string(cached[0].ServerPayload))
	assert.Equal(t, int64(6), cached[0].ServerVersion)
	assert.Equal(t, models.ConflictPending, cached[0].Status)
}

func TestSyncEngine_Sync_ConflictedRecordFollowsServerUntilResolved(t *testing.T) {
	srv := &stubAdapter{
		updateErr: &adapter.ConflictError{Response: models.ConflictResponse{
			ConflictID:    "c-7",
			ServerPayload: json.RawMessage(`{"qty":9}`),
			ServerVersion: 6,
		}},
	}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{"qty":1}`))
	require.NoError(t, err)
	items, err := local.DequeueBatch(ctx, 10, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	_, err = local.ConfirmSynced(ctx, items[0], 1)
	require.NoError(t, err)
	_, err = local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{"qty":5}`))
	require.NoError(t, err)

	_, err = engine.Sync(ctx)
	require.NoError(t, err)

	// The rejected edit is parked in the conflict cache; the record itself
	// follows the server's copy so it stays reachable by pulls.
	rec, err := local.Get(ctx, models.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"qty":9}`, string(rec.Payload))
	assert.Equal(t, int64(6), rec.ServerVersion)
	assert.False(t, rec.Dirty())

	// Once the server lands a resolution, the next pull must bring it down.
	err = local.ApplyServerState(ctx, []models.EntityRecord{{
		EntityType:    models.EntityOrder,
		ID:            "ord-1",
		Payload:       json.RawMessage(`{"qty":7}`),
		ServerVersion: 7,
		UpdatedAt:     time.Now().UTC(),
	}})
	require.NoError(t, err)

	rec, err = local.Get(ctx, models.EntityOrder, "ord-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"qty":7}`, string(rec.Payload))
	assert.Equal(t, int64(7), rec.ServerVersion)
}

func TestSyncEngine_Sync_RetryBudgetIsBounded(t *testing.T) {
	srv := &stubAdapter{createErr: adapter.ErrInternalServerError}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	progress, err := engine.Sync(ctx)
	require.NoError(t, err)

	// Initial attempt plus two retries, never a fourth.
	assert.Equal(t, 3, srv.pushCount())
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, models.SyncStatusErrors, progress.Status)
	assert.NotEmpty(t, progress.LastError)

	failed, err := local.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1, "the dropped change must stay visible")

	remaining, err := local.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestSyncEngine_Sync_OfflineUpFront(t *testing.T) {
	srv := &stubAdapter{}
	checker := &stubChecker{}
	engine, local := newTestEngine(t, srv, checker, 3)
	ctx := context.Background()

	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = engine.Sync(ctx)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Zero(t, srv.pushCount())
	assert.Equal(t, models.SyncStatusOffline, engine.Progress().Status)
}

func TestSyncEngine_Sync_HaltsWhenConnectivityDropsMidCycle(t *testing.T) {
	checker := onlineChecker()
	srv := &stubAdapter{}
	srv.onPush = func() {
		// The connection dies while the first request is on the wire.
		if srv.pushCount() == 1 {
			checker.online.Store(false)
			srv.mu.Lock()
			srv.createErr = fmt.Errorf("%w: connection reset", adapter.ErrNetworkUnavailable)
			srv.mu.Unlock()
		}
	}
	engine, local := newTestEngine(t, srv, checker, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := local.Put(ctx, models.EntityQCRecord, fmt.Sprintf("qc-%d", i), json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	progress, err := engine.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusOffline, progress.Status)
	assert.LessOrEqual(t, srv.pushCount(), 2, "remaining items must not be attempted offline")

	// Nothing was dropped and no retry budget was burned.
	remaining, err := local.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestSyncEngine_Sync_BusyCollapsesConcurrentCycles(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := &stubAdapter{}
	srv.onPush = func() {
		started <- struct{}{}
		<-release
	}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Sync(ctx)
	}()

	<-started
	_, err = engine.Sync(ctx)
	assert.ErrorIs(t, err, ErrSyncBusy)

	close(release)
	<-done
	assert.Equal(t, 1, srv.pushCount())
}

func TestSyncEngine_Sync_EmptyQueueIsIdle(t *testing.T) {
	srv := &stubAdapter{}
	engine, _ := newTestEngine(t, srv, onlineChecker(), 3)

	progress, err := engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusIdle, progress.Status)
	assert.Equal(t, 100, progress.Percent())
	assert.Zero(t, srv.pushCount())
}

func TestSyncEngine_Sync_DeleteGoneServerSideCountsAsSuccess(t *testing.T) {
	srv := &stubAdapter{deleteErr: adapter.ErrNotFound}
	engine, local := newTestEngine(t, srv, onlineChecker(), 3)
	ctx := context.Background()

	_, err := local.Put(ctx, models.EntityOrder, "ord-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	items, err := local.DequeueBatch(ctx, 10, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	_, err = local.ConfirmSynced(ctx, items[0], 1)
	require.NoError(t, err)
	require.NoError(t, local.Delete(ctx, models.EntityOrder, "ord-1"))

	progress, err := engine.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusIdle, progress.Status)
	assert.Zero(t, progress.Failed)

	remaining, err := local.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
