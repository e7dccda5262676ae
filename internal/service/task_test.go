package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/labtasker-go/internal/fsm"
)

func mustQueue(t *testing.T, svc *Service) string {
	t.Helper()
	q, err := svc.CreateQueue(context.Background(), "q-"+clockSeq(), "pw", nil)
	require.NoError(t, err)
	return q.ID
}

// clockSeq gives each test queue a distinct name without depending on
// wall-clock time (the fixed test clock never advances).
var seqMu sync.Mutex
var seq int

func clockSeq() string {
	seqMu.Lock()
	defer seqMu.Unlock()
	seq++
	return string(rune('a' + seq))
}

func TestCreateTask_RequiresArgsOrCmd(t *testing.T) {
	svc := newTestService(t)
	qid := mustQueue(t, svc)

	_, err := svc.CreateTask(context.Background(), qid, "t", nil, nil, nil, nil, nil, nil, nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}

func TestFetchTask_ReturnsNilWhenEmpty(t *testing.T) {
	svc := newTestService(t)
	qid := mustQueue(t, svc)

	task, err := svc.FetchTask(context.Background(), qid, "", "60", nil, true, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestFetchTask_ClaimsHighestPriorityFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	_, err := svc.CreateTask(ctx, qid, "low", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(3), intPtr(0))
	require.NoError(t, err)
	high, err := svc.CreateTask(ctx, qid, "high", map[string]any{"x": 2}, nil, nil, nil, nil, intPtr(3), intPtr(10))
	require.NoError(t, err)

	fetched, err := svc.FetchTask(ctx, qid, "", "60", nil, true, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, high.ID, fetched.ID)
	assert.Equal(t, fsm.TaskRunning, fetched.Status)
}

func TestFetchTask_RequiredFieldsFiltersCandidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	_, err := svc.CreateTask(ctx, qid, "a", map[string]any{"region": "eu"}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)
	match, err := svc.CreateTask(ctx, qid, "b", map[string]any{"region": "us"}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)

	fetched, err := svc.FetchTask(ctx, qid, "", "60", nil, true, map[string]any{"region": "us"}, nil)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, match.ID, fetched.ID)
}

func TestFetchTask_RejectsInactiveWorker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	w, err := svc.CreateWorker(ctx, qid, "w", nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ReportWorkerStatus(ctx, qid, w.ID, "suspended"))

	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)

	_, err = svc.FetchTask(ctx, qid, w.ID, "60", nil, true, nil, nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, svcErr.Kind)
}

// TestFetchTask_ExactlyOneWinsRace exercises the exactly-one-fetch-succeeds
// invariant: many concurrent fetchers race for a single PENDING task and
// exactly one must come back with it.
func TestFetchTask_ExactlyOneWinsRace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	_, err := svc.CreateTask(ctx, qid, "contested", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := svc.FetchTask(ctx, qid, "", "60", nil, true, nil, nil)
			require.NoError(t, err)
			if task != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestWorkerReportTaskStatus_RejectsWrongWorker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	w1, err := svc.CreateWorker(ctx, qid, "w1", nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateWorker(ctx, qid, "w2", nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)

	task, err := svc.FetchTask(ctx, qid, w1.ID, "60", nil, true, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, task)

	err = svc.WorkerReportTaskStatus(ctx, qid, task.ID, "someone-else", "success", nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, svcErr.Kind)
}

func TestReportTaskStatus_SuccessClearsWorker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	w, err := svc.CreateWorker(ctx, qid, "w", nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(3), nil)
	require.NoError(t, err)

	task, err := svc.FetchTask(ctx, qid, w.ID, "60", nil, true, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ReportTaskStatus(ctx, qid, task.ID, "success", map[string]any{"result": 42}))

	got, err := svc.GetTask(ctx, qid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.TaskSuccess, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, 42, got.Summary["result"])
}

func TestReportTaskStatus_FailureCascadesToWorker(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	w, err := svc.CreateWorker(ctx, qid, "w", nil, intPtr(0))
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, intPtr(0), nil)
	require.NoError(t, err)

	task, err := svc.FetchTask(ctx, qid, w.ID, "60", nil, true, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ReportTaskStatus(ctx, qid, task.ID, "failed", nil))

	gotTask, err := svc.GetTask(ctx, qid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.TaskFailed, gotTask.Status)

	gotWorker, err := svc.GetWorker(ctx, qid, w.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.WorkerCrashed, gotWorker.Status)
}

func TestCancelTask_RejectsTerminalState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	task, err := svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.CancelTask(ctx, qid, task.ID))

	err = svc.CancelTask(ctx, qid, task.ID)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}

func TestUpdateTask_ResetPending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	task, err := svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.CancelTask(ctx, qid, task.ID))

	err = svc.UpdateTask(ctx, qid, task.ID, map[string]any{"priority": 5}, true)
	require.NoError(t, err)

	got, err := svc.GetTask(ctx, qid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, fsm.TaskPending, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.Equal(t, 5, got.Priority)
}

func TestUpdateTask_RejectsPrivilegedField(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	qid := mustQueue(t, svc)

	task, err := svc.CreateTask(ctx, qid, "t", map[string]any{"x": 1}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	err = svc.UpdateTask(ctx, qid, task.ID, map[string]any{"status": "SUCCESS"}, false)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}
