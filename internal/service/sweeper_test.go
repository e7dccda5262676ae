package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/clock"
	"github.com/maumercado/labtasker-go/internal/fsm"
	"github.com/maumercado/labtasker-go/internal/store"
)

func TestHandleTimeouts_FailsHeartbeatExpired(t *testing.T) {
	st := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.Fixed(start)
	svc := New(st, clk, nil, nil)
	ctx := context.Background()

	qid := mustQueue(t, svc)
	w, err := svc.CreateWorker(ctx, qid, "w", nil, nil)
	require.NoError(t, err)
	hb := 30.0
	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, &hb, nil, intPtr(3), nil)
	require.NoError(t, err)

	task, err := svc.FetchTask(ctx, qid, w.ID, "", &hb, true, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, task)

	// advance the clock well past the 30s heartbeat timeout
	svc.clock = clock.Fixed(start.Add(2 * time.Minute))

	transitioned, err := svc.HandleTimeouts(ctx)
	require.NoError(t, err)
	require.Len(t, transitioned, 1)
	assert.Equal(t, task.ID, transitioned[0])

	got, err := svc.GetTask(ctx, qid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.TaskPending, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, "Either heartbeat or task execution timed out", got.Summary["labtasker_error"])
}

func TestHandleTimeouts_IgnoresHealthyTasks(t *testing.T) {
	st := newMemStore()
	svc := New(st, clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil, nil)
	ctx := context.Background()

	qid := mustQueue(t, svc)
	hb := 3600.0
	_, err := svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, &hb, nil, intPtr(3), nil)
	require.NoError(t, err)
	task, err := svc.FetchTask(ctx, qid, "", "", &hb, true, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, task)

	transitioned, err := svc.HandleTimeouts(ctx)
	require.NoError(t, err)
	assert.Empty(t, transitioned)
}

func TestFailTimedOutTask_SkipsStaleSnapshotRacedByReport(t *testing.T) {
	// Simulates the exact race spec.md §4.5/§5 calls out: the sweeper's
	// Find scan observed the task as RUNNING (the snapshot below), but by
	// the time it tries to write its fail transition, a concurrent
	// worker_report_task_status has already moved the task to SUCCESS.
	// The CAS write must no-op rather than clobber that outcome.
	st := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(st, clock.Fixed(start), nil, nil)
	ctx := context.Background()

	qid := mustQueue(t, svc)
	w, err := svc.CreateWorker(ctx, qid, "w", nil, nil)
	require.NoError(t, err)
	hb := 30.0
	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, &hb, nil, intPtr(3), nil)
	require.NoError(t, err)

	staleSnapshot, err := svc.FetchTask(ctx, qid, w.ID, "", &hb, true, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, staleSnapshot)

	require.NoError(t, svc.WorkerReportTaskStatus(ctx, qid, staleSnapshot.ID, w.ID, "success", nil))

	applied, err := svc.failTimedOutTask(ctx, staleSnapshot)
	require.NoError(t, err)
	assert.False(t, applied, "sweeper must not clobber a task that already left RUNNING")

	got, err := svc.GetTask(ctx, qid, staleSnapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.TaskSuccess, got.Status)
	assert.Nil(t, got.Summary["labtasker_error"])
}

func TestHandleTimeouts_IgnoresOtherCollections(t *testing.T) {
	st := newMemStore()
	svc := New(st, clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil, nil)

	_, err := st.InsertOne(context.Background(), store.CollectionQueues, bson.M{"_id": "q", "queue_name": "q"})
	require.NoError(t, err)

	transitioned, err := svc.HandleTimeouts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, transitioned)
}
