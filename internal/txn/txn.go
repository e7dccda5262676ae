// Package txn tracks "am I currently inside a transaction?" as a value
// carried on context.Context, replacing the contextvars-based dynamic
// variable the original implementation uses. Because the flag rides the
// request's own context instead of a package-level global, it cannot leak
// between concurrently-running requests or goroutines.
package txn

import (
	"context"
	"errors"
)

type contextKey struct{}

// ErrNestedTransaction is returned by Begin when the context already marks
// an open transaction and nesting was not explicitly allowed.
var ErrNestedTransaction = errors.New("nested transactions are not allowed")

// Guard must have Release called on every exit path of the scope that
// opened it (typically via defer), restoring the prior transaction marker.
type Guard struct {
	release func()
}

// Release restores the transaction marker to whatever it was before Begin.
// Calling Release more than once is a no-op.
func (g *Guard) Release() {
	if g == nil || g.release == nil {
		return
	}
	g.release()
	g.release = nil
}

// Begin marks ctx as being inside a transaction and returns the
// transaction-scoped context plus a Guard to release it. If ctx is already
// marked and allowNesting is false, it returns ErrNestedTransaction.
func Begin(ctx context.Context, allowNesting bool) (context.Context, *Guard, error) {
	if InTransaction(ctx) && !allowNesting {
		return ctx, nil, ErrNestedTransaction
	}
	next := context.WithValue(ctx, contextKey{}, true)
	return next, &Guard{release: func() {}}, nil
}

// InTransaction reports whether ctx is currently marked as being inside a
// transaction.
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(contextKey{}).(bool)
	return v
}
