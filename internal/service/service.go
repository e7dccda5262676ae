// Package service implements the transactional DB service: the scheduling
// engine coordinating queues, tasks, and workers. Every public method
// corresponds 1:1 to an operation in spec.md §4.4, grounded line-for-line
// on the original implementation's DBService class
// (_examples/original_source/labtasker/server/database.py).
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/maumercado/labtasker-go/internal/clock"
	"github.com/maumercado/labtasker-go/internal/events"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/metrics"
	"github.com/maumercado/labtasker-go/internal/security"
	"github.com/maumercado/labtasker-go/internal/store"
	"github.com/maumercado/labtasker-go/internal/txn"
)

// Service is the stateless transactional core: it holds a store handle,
// a clock, an optional session-token issuer, and an optional event
// publisher, but preserves no state across calls — matching the original's
// "instance itself does not preserve any state across API calls" comment
// on DBService.__init__.
type Service struct {
	store  store.Store
	clock  clock.Clock
	tokens *security.TokenIssuer
	events events.Publisher
	log    zerolog.Logger
}

// New builds a Service. tokens and pub may be nil — session-token issuance
// and event fan-out are both optional conveniences layered on top of the
// password-credential and document-store core.
func New(st store.Store, clk clock.Clock, tokens *security.TokenIssuer, pub events.Publisher) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		store:  st,
		clock:  clk,
		tokens: tokens,
		events: pub,
		log:    logger.WithComponent("service"),
	}
}

// Close releases the service's store connection pool.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// Ping verifies connectivity to the document store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// withTxn runs fn inside a single document-store transaction, guarding
// against accidental re-entrant transactions via internal/txn's
// context-scoped marker — the Go equivalent of the original's
// thread-local "am I already inside a transaction?" flag (spec.md §5).
// allowNesting lets an inner call reuse an ambient transaction already
// open on ctx instead of rejecting it as nested.
func (s *Service) withTxn(ctx context.Context, allowNesting bool, fn func(ctx context.Context) error) error {
	txCtx, guard, err := txn.Begin(ctx, allowNesting)
	if err != nil {
		return internal("%v", err)
	}
	defer guard.Release()

	_, err = s.store.WithTransaction(txCtx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if svcErr, ok := AsError(err); ok {
			return svcErr
		}
		return internal("transaction aborted: %v", err)
	}
	return nil
}

// publish fans an event out if a publisher is configured, logging (never
// returning) a failure — lifecycle notification is best-effort and must
// never fail the mutation that triggered it.
func (s *Service) publish(ctx context.Context, eventType events.EventType, queueID string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.NewEvent(eventType, queueID, data)); err != nil {
		s.log.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to publish event")
		return
	}
	metrics.RecordEventPublished(string(eventType))
}
