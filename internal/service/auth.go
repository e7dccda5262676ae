package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/model"
	"github.com/maumercado/labtasker-go/internal/security"
	"github.com/maumercado/labtasker-go/internal/store"
)

// AuthenticateQueue resolves (queueName, password) to a queue id, the Go
// equivalent of the original's `auth_required` decorator: every mutating
// operation except create_queue and the pure-read get_queue requires this
// to run first, substituting the resolved queue_id into the downstream
// call. It is the caller's (HTTP middleware's) job to invoke this once per
// request and pass the resulting queue id to the Service methods below.
func (s *Service) AuthenticateQueue(ctx context.Context, queueName, password string) (string, error) {
	if queueName == "" || password == "" {
		return "", invalidInput("queue name and password are required")
	}

	doc, err := s.store.FindOne(ctx, store.CollectionQueues, bson.M{"queue_name": queueName})
	if err != nil {
		return "", internal("look up queue %q: %v", queueName, err)
	}
	queue := model.QueueFromDoc(doc)
	if queue == nil {
		return "", unauthorized("invalid queue name or password")
	}
	if !security.VerifyPassword(queue.PasswordHash, password) {
		return "", unauthorized("invalid queue name or password")
	}
	return queue.ID, nil
}

// IssueSessionToken authenticates (queueName, password) and, on success,
// mints a short-lived session token a worker may present instead of
// re-sending the password on every poll (SPEC_FULL.md §2 item 10). The
// password path remains authoritative; this is a cache of one successful
// verification, not a replacement for it.
func (s *Service) IssueSessionToken(ctx context.Context, queueName, password string) (string, error) {
	queueID, err := s.AuthenticateQueue(ctx, queueName, password)
	if err != nil {
		return "", err
	}
	if s.tokens == nil {
		return "", internal("session tokens are not configured")
	}
	return s.tokens.Issue(queueID)
}

// ResolveSessionToken verifies a previously issued session token and
// returns the queue id it is bound to.
func (s *Service) ResolveSessionToken(token string) (string, error) {
	if s.tokens == nil {
		return "", internal("session tokens are not configured")
	}
	queueID, err := s.tokens.Parse(token)
	if err != nil {
		return "", unauthorized("invalid or expired session token")
	}
	return queueID, nil
}
