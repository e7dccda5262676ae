package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/clock"
	"github.com/maumercado/labtasker-go/internal/events"
	"github.com/maumercado/labtasker-go/internal/model"
	"github.com/maumercado/labtasker-go/internal/security"
	"github.com/maumercado/labtasker-go/internal/store"
)

// CreateQueue registers a new password-protected queue, grounded on
// database.py's create_queue: 400 on an empty name, 409 if the name is
// already taken.
func (s *Service) CreateQueue(ctx context.Context, queueName, password string, metadata map[string]any) (*model.Queue, error) {
	if queueName == "" {
		return nil, invalidInput("queue_name must not be empty")
	}
	if password == "" {
		return nil, invalidInput("password must not be empty")
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, internal("hash password: %v", err)
	}

	now := s.clock.Now()
	q := &model.Queue{
		ID:           clock.NewID(),
		QueueName:    queueName,
		PasswordHash: hash,
		CreatedAt:    now,
		LastModified: now,
		Metadata:     metadata,
	}

	if _, err := s.store.InsertOne(ctx, store.CollectionQueues, q.ToDoc()); err != nil {
		if err == store.ErrDuplicateKey {
			return nil, conflict("queue %q already exists", queueName)
		}
		return nil, internal("create queue: %v", err)
	}

	s.publish(ctx, events.EventQueueCreated, q.ID, map[string]any{"queue_name": q.QueueName})
	return q, nil
}

// UpdateQueue renames the queue and/or rotates its password and/or merges
// metadata, grounded on database.py's update_queue. A rename to a name
// already in use by another queue is rejected with 400, matching the
// original's check via _get_queue_by_name.
func (s *Service) UpdateQueue(ctx context.Context, queueID string, newName *string, newPassword *string, metadataUpdate map[string]any) error {
	if newName != nil && *newName != "" {
		existing, err := s.store.FindOne(ctx, store.CollectionQueues, bson.M{"queue_name": *newName})
		if err != nil {
			return internal("check queue name: %v", err)
		}
		if existing != nil && getID(existing) != queueID {
			return invalidInput("queue name %q is already in use", *newName)
		}
	}

	set := bson.M{"last_modified": s.clock.Now()}
	if newName != nil && *newName != "" {
		set["queue_name"] = *newName
	}
	if newPassword != nil && *newPassword != "" {
		hash, err := security.HashPassword(*newPassword)
		if err != nil {
			return internal("hash password: %v", err)
		}
		set["password"] = hash
	}
	for k, v := range store.AddKeyPrefix(metadataUpdate, "metadata.") {
		set[k] = v
	}

	n, err := s.store.UpdateOne(ctx, store.CollectionQueues, bson.M{"_id": queueID}, bson.M{"$set": set})
	if err != nil {
		return internal("update queue: %v", err)
	}
	if n == 0 {
		return notFound("queue %q not found", queueID)
	}
	return nil
}

// DeleteQueue removes a queue and, if cascade is set, every task and worker
// it owns, grounded on database.py's delete_queue. The queue delete and its
// cascade run inside a single transaction so a crash mid-cascade can never
// leave the queue gone but its tasks/workers orphaned, or vice versa.
// Returns the total number of documents removed across all three
// collections.
func (s *Service) DeleteQueue(ctx context.Context, queueID string, cascade bool) (int64, error) {
	var total int64
	err := s.withTxn(ctx, false, func(ctx context.Context) error {
		deleted, err := s.store.DeleteOne(ctx, store.CollectionQueues, bson.M{"_id": queueID})
		if err != nil {
			return internal("delete queue: %v", err)
		}
		if deleted == 0 {
			return notFound("queue %q not found", queueID)
		}
		total = deleted

		if cascade {
			tasksDeleted, err := s.store.DeleteMany(ctx, store.CollectionTasks, bson.M{"queue_id": queueID})
			if err != nil {
				return internal("cascade delete tasks: %v", err)
			}
			workersDeleted, err := s.store.DeleteMany(ctx, store.CollectionWorkers, bson.M{"queue_id": queueID})
			if err != nil {
				return internal("cascade delete workers: %v", err)
			}
			total += tasksDeleted + workersDeleted
		}
		return nil
	})
	if err != nil {
		return total, err
	}

	s.publish(ctx, events.EventQueueDeleted, queueID, map[string]any{"cascade": cascade})
	return total, nil
}

// GetQueue is the unauthenticated read helper behind database.py's
// get_queue: at least one of queueID/queueName must be given. When both are
// given, a queue found by id whose name does not match queueName is a 400
// (the caller contradicted itself), not a silent not-found.
func (s *Service) GetQueue(ctx context.Context, queueID, queueName string) (*model.Queue, error) {
	var filter bson.M
	switch {
	case queueID != "":
		filter = bson.M{"_id": queueID}
	case queueName != "":
		filter = bson.M{"queue_name": queueName}
	default:
		return nil, invalidInput("queue id or queue name is required")
	}

	doc, err := s.store.FindOne(ctx, store.CollectionQueues, filter)
	if err != nil {
		return nil, internal("get queue: %v", err)
	}
	queue := model.QueueFromDoc(doc)
	if queue != nil && queueID != "" && queueName != "" && queue.QueueName != queueName {
		return nil, invalidInput("queue id %q does not belong to queue name %q", queueID, queueName)
	}
	return queue, nil
}

func getID(doc bson.M) string {
	id, _ := doc["_id"].(string)
	return id
}
