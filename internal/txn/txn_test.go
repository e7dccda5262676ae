package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBegin_MarksContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, InTransaction(ctx))

	txCtx, guard, err := Begin(ctx, false)
	require.NoError(t, err)
	assert.True(t, InTransaction(txCtx))
	assert.False(t, InTransaction(ctx), "the original context must be unaffected")

	guard.Release()
}

func TestBegin_RejectsNestingByDefault(t *testing.T) {
	ctx := context.Background()
	txCtx, guard, err := Begin(ctx, false)
	require.NoError(t, err)
	defer guard.Release()

	_, _, err = Begin(txCtx, false)
	assert.ErrorIs(t, err, ErrNestedTransaction)
}

func TestBegin_AllowsExplicitNesting(t *testing.T) {
	ctx := context.Background()
	txCtx, outer, err := Begin(ctx, false)
	require.NoError(t, err)
	defer outer.Release()

	innerCtx, inner, err := Begin(txCtx, true)
	require.NoError(t, err)
	defer inner.Release()

	assert.True(t, InTransaction(innerCtx))
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, guard, err := Begin(ctx, false)
	require.NoError(t, err)

	guard.Release()
	assert.NotPanics(t, func() { guard.Release() })
}

func TestGuard_ReleaseOnNilIsNoop(t *testing.T) {
	var guard *Guard
	assert.NotPanics(t, func() { guard.Release() })
}

func TestInTransaction_FalseOnBareContext(t *testing.T) {
	assert.False(t, InTransaction(context.Background()))
}
