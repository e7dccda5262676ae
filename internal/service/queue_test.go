package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/labtasker-go/internal/clock"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(newMemStore(), clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil, nil)
}

// intPtr is a small test helper for the *int fields (max_retries, priority)
// that distinguish an omitted value from an explicit 0.
func intPtr(n int) *int { return &n }

func TestCreateQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q, err := svc.CreateQueue(ctx, "queue-a", "hunter2", map[string]any{"owner": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "queue-a", q.QueueName)
	assert.NotEmpty(t, q.ID)
	assert.NotEqual(t, "hunter2", q.PasswordHash)
}

func TestCreateQueue_RejectsEmptyName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateQueue(context.Background(), "", "pw", nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}

func TestCreateQueue_DuplicateName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateQueue(ctx, "dup", "pw1", nil)
	require.NoError(t, err)

	_, err = svc.CreateQueue(ctx, "dup", "pw2", nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, svcErr.Kind)
}

func TestAuthenticateQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q, err := svc.CreateQueue(ctx, "queue-b", "correct-password", nil)
	require.NoError(t, err)

	id, err := svc.AuthenticateQueue(ctx, "queue-b", "correct-password")
	require.NoError(t, err)
	assert.Equal(t, q.ID, id)

	_, err = svc.AuthenticateQueue(ctx, "queue-b", "wrong-password")
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnauthorized, svcErr.Kind)
}

func TestUpdateQueue_RenameConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateQueue(ctx, "taken", "pw", nil)
	require.NoError(t, err)
	q2, err := svc.CreateQueue(ctx, "free", "pw", nil)
	require.NoError(t, err)

	taken := "taken"
	err = svc.UpdateQueue(ctx, q2.ID, &taken, nil, nil)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}

func TestDeleteQueue_Cascade(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q, err := svc.CreateQueue(ctx, "cascading", "pw", nil)
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, q.ID, "t1", map[string]any{"x": 1}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateWorker(ctx, q.ID, "w1", nil, nil)
	require.NoError(t, err)

	n, err := svc.DeleteQueue(ctx, q.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = svc.DeleteQueue(ctx, q.ID, false)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, svcErr.Kind)
}

func TestGetQueue_MismatchedIDAndName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	q, err := svc.CreateQueue(ctx, "queue-c", "pw", nil)
	require.NoError(t, err)

	_, err = svc.GetQueue(ctx, q.ID, "wrong-name")
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, svcErr.Kind)
}

func TestGetQueue_NotFoundReturnsNilNoError(t *testing.T) {
	svc := newTestService(t)
	got, err := svc.GetQueue(context.Background(), "missing-id", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}
