package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/clock"
	"github.com/maumercado/labtasker-go/internal/events"
	"github.com/maumercado/labtasker-go/internal/fsm"
	"github.com/maumercado/labtasker-go/internal/metrics"
	"github.com/maumercado/labtasker-go/internal/model"
	"github.com/maumercado/labtasker-go/internal/store"
)

// CreateWorker registers a new worker under a queue, grounded on
// database.py's create_worker: it starts ACTIVE with zero retries.
func (s *Service) CreateWorker(ctx context.Context, queueID, workerName string, metadata map[string]any, maxRetries *int) (*model.Worker, error) {
	resolvedMaxRetries := model.DefaultMaxRetries
	if maxRetries != nil {
		resolvedMaxRetries = *maxRetries
	}
	now := s.clock.Now()
	w := &model.Worker{
		ID:           clock.NewID(),
		QueueID:      queueID,
		WorkerName:   workerName,
		Status:       fsm.WorkerActive,
		Retries:      0,
		MaxRetries:   resolvedMaxRetries,
		Metadata:     metadata,
		CreatedAt:    now,
		LastModified: now,
	}
	if _, err := s.store.InsertOne(ctx, store.CollectionWorkers, w.ToDoc()); err != nil {
		return nil, internal("create worker: %v", err)
	}
	s.publish(ctx, events.EventWorkerActive, queueID, events.WorkerEventData(w.ID, nil))
	return w, nil
}

// DeleteWorker removes a worker and, if cascadeUpdate is set, clears the
// worker_id field on every task it held, grounded on database.py's
// delete_worker. Both mutations run inside one transaction so a task can
// never be left pointing at a worker_id that no longer exists.
func (s *Service) DeleteWorker(ctx context.Context, queueID, workerID string, cascadeUpdate bool) error {
	return s.withTxn(ctx, false, func(ctx context.Context) error {
		n, err := s.store.DeleteOne(ctx, store.CollectionWorkers, bson.M{"_id": workerID, "queue_id": queueID})
		if err != nil {
			return internal("delete worker: %v", err)
		}
		if n == 0 {
			return notFound("worker %q not found", workerID)
		}

		if cascadeUpdate {
			if _, err := s.store.UpdateMany(ctx, store.CollectionTasks,
				bson.M{"queue_id": queueID, "worker_id": workerID},
				bson.M{"$set": bson.M{"worker_id": nil, "last_modified": s.clock.Now()}},
			); err != nil {
				return internal("cascade unassign tasks: %v", err)
			}
		}
		return nil
	})
}

// ReportWorkerStatus transitions a worker's liveness state through
// WorkerFSM, grounded on database.py's report_worker_status /
// _report_worker_status.
func (s *Service) ReportWorkerStatus(ctx context.Context, queueID, workerID, reportStatus string) error {
	return s.reportWorkerStatus(ctx, queueID, workerID, reportStatus)
}

func (s *Service) reportWorkerStatus(ctx context.Context, queueID, workerID, reportStatus string) error {
	doc, err := s.store.FindOne(ctx, store.CollectionWorkers, bson.M{"_id": workerID, "queue_id": queueID})
	if err != nil {
		return internal("load worker: %v", err)
	}
	worker := model.WorkerFromDoc(doc)
	if worker == nil {
		return notFound("worker %q not found", workerID)
	}

	workerFSM := fsm.NewWorkerFSM(worker.Status, worker.Retries, worker.MaxRetries)
	var next fsm.WorkerFSM
	switch reportStatus {
	case "active":
		next, err = workerFSM.Activate()
	case "suspended":
		next, err = workerFSM.Suspend()
	case "failed":
		next, err = workerFSM.Fail()
	default:
		return invalidInput("invalid report_status %q", reportStatus)
	}
	if err != nil {
		return invalidInput("%v", err)
	}

	set := bson.M{
		"status":        string(next.State),
		"retries":       next.Retries,
		"last_modified": s.clock.Now(),
	}
	if _, err := s.store.UpdateOne(ctx, store.CollectionWorkers, bson.M{"_id": workerID, "queue_id": queueID}, bson.M{"$set": set}); err != nil {
		return internal("report worker status: %v", err)
	}

	if next.State == fsm.WorkerCrashed {
		metrics.RecordWorkerCrash(queueID)
	}
	s.publish(ctx, workerEventFor(next.State), queueID, events.WorkerEventData(workerID, map[string]any{"retries": next.Retries}))
	return nil
}

// GetWorker is the unauthenticated read helper behind database.py's
// get_worker.
func (s *Service) GetWorker(ctx context.Context, queueID, workerID string) (*model.Worker, error) {
	doc, err := s.store.FindOne(ctx, store.CollectionWorkers, bson.M{"_id": workerID, "queue_id": queueID})
	if err != nil {
		return nil, internal("get worker: %v", err)
	}
	return model.WorkerFromDoc(doc), nil
}

func workerEventFor(state fsm.WorkerState) events.EventType {
	switch state {
	case fsm.WorkerActive:
		return events.EventWorkerActive
	case fsm.WorkerSuspended:
		return events.EventWorkerSuspended
	default:
		return events.EventWorkerCrashed
	}
}
