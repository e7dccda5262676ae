package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/fsm"
	"github.com/maumercado/labtasker-go/internal/metrics"
	"github.com/maumercado/labtasker-go/internal/model"
	"github.com/maumercado/labtasker-go/internal/store"
)

// timeoutErrorSummary is the fixed error message database.py's
// handle_timeouts writes to summary.labtasker_error on a sweep-triggered
// failure.
const timeoutErrorSummary = "Either heartbeat or task execution timed out"

// HandleTimeouts scans every RUNNING task across all queues and fails the
// ones whose heartbeat or overall task deadline has elapsed, grounded on
// database.py's handle_timeouts. Unlike the original, which expresses the
// elapsed-time comparison as a MongoDB $expr aggregation over
// $divide/$subtract, the comparison is evaluated here in application code
// against the injected clock — equivalent semantics without requiring the
// query sanitizer to admit $expr. A single task's failure does not abort
// the sweep: the error is swallowed and the sweep continues, matching the
// original's per-task try/except.
func (s *Service) HandleTimeouts(ctx context.Context) ([]string, error) {
	docs, err := s.store.Find(ctx, store.CollectionTasks, bson.M{"status": string(fsm.TaskRunning)}, store.FindOptions{})
	if err != nil {
		return nil, internal("find running tasks: %v", err)
	}

	now := s.clock.Now()
	var transitioned []string
	for _, doc := range docs {
		task := model.TaskFromDoc(doc)
		if !timedOut(task, now) {
			continue
		}
		applied, err := s.failTimedOutTask(ctx, task)
		if err != nil {
			s.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to apply task timeout")
			continue
		}
		if applied {
			transitioned = append(transitioned, task.ID)
		}
	}
	s.refreshQueueGauges(ctx)
	return transitioned, nil
}

// refreshQueueGauges recomputes the pending-task and active-worker gauges
// for every queue. It runs alongside the sweep pass since that is already
// the service's one periodic, all-queues scan; a count failure for one
// queue just skips that queue's gauge update rather than aborting the sweep.
func (s *Service) refreshQueueGauges(ctx context.Context) {
	queueDocs, err := s.store.Find(ctx, store.CollectionQueues, bson.M{}, store.FindOptions{})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list queues for gauge refresh")
		return
	}
	metrics.QueuesActive.Set(float64(len(queueDocs)))

	for _, qdoc := range queueDocs {
		q := model.QueueFromDoc(qdoc)
		if q == nil {
			continue
		}
		if pending, err := s.store.CountDocuments(ctx, store.CollectionTasks,
			bson.M{"queue_id": q.ID, "status": string(fsm.TaskPending)}); err == nil {
			metrics.SetQueuePendingTasks(q.ID, float64(pending))
		}
		if active, err := s.store.CountDocuments(ctx, store.CollectionWorkers,
			bson.M{"queue_id": q.ID, "status": string(fsm.WorkerActive)}); err == nil {
			metrics.SetActiveWorkers(q.ID, float64(active))
		}
	}
}

func timedOut(task *model.Task, now time.Time) bool {
	if task.LastHeartbeat != nil && task.HeartbeatTimeout != nil {
		if now.Sub(*task.LastHeartbeat).Seconds() > *task.HeartbeatTimeout {
			return true
		}
	}
	if task.StartTime != nil && task.TaskTimeout != nil {
		if now.Sub(*task.StartTime).Seconds() > float64(*task.TaskTimeout) {
			return true
		}
	}
	return false
}

// failTimedOutTask applies the fail transition via a compare-and-swap
// FindOneAndUpdate keyed on status=RUNNING, the same CAS shape FetchTask
// uses for its PENDING->RUNNING claim. This is what makes the race spec.md
// §4.5/§5 describes safe: if a concurrent report, cancel or update moved
// the task out of RUNNING between the Find scan and here, the conditional
// update finds a stale document, applies to zero rows, and the sweep simply
// skips this task instead of clobbering a state it no longer observes.
func (s *Service) failTimedOutTask(ctx context.Context, task *model.Task) (bool, error) {
	taskFSM := fsm.NewTaskFSM(task.Status, task.Retries, task.MaxRetries)
	next, err := taskFSM.Fail()
	if err != nil {
		return false, err
	}

	set := bson.M{
		"status":                  string(next.State),
		"retries":                 next.Retries,
		"last_modified":           s.clock.Now(),
		"worker_id":               nil,
		"summary.labtasker_error": timeoutErrorSummary,
	}
	claimFilter := bson.M{"_id": task.ID, "status": string(fsm.TaskRunning)}
	result, err := s.store.FindOneAndUpdate(ctx, store.CollectionTasks, claimFilter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if result == nil {
		// lost the race to a concurrent status change; task already left RUNNING
		return false, nil
	}

	if task.WorkerID != nil {
		if err := s.reportWorkerStatus(ctx, task.QueueID, *task.WorkerID, "failed"); err != nil {
			s.log.Warn().Err(err).Str("worker_id", *task.WorkerID).Msg("failed to cascade worker timeout")
		}
	}

	metrics.RecordTaskTimeout(task.QueueID)
	s.publish(ctx, taskEventFor(next.State), task.QueueID, nil)
	return true, nil
}

// Sweeper periodically invokes HandleTimeouts on a fixed interval,
// grounded on internal/queue's poll-loop shape (ticker + stopCh + WaitGroup).
type Sweeper struct {
	svc      *Service
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper builds a Sweeper that runs HandleTimeouts every interval.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the sweep loop in a background goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.wg.Add(1)
	go sw.loop(ctx)
	sw.svc.log.Info().Dur("interval", sw.interval).Msg("timeout sweeper started")
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	close(sw.stopCh)
	sw.wg.Wait()
	sw.svc.log.Info().Msg("timeout sweeper stopped")
}

func (sw *Sweeper) loop(ctx context.Context) {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopCh:
			return
		case <-ticker.C:
			start := time.Now()
			transitioned, err := sw.svc.HandleTimeouts(ctx)
			metrics.RecordSweepDuration(time.Since(start).Seconds())
			if err != nil {
				sw.svc.log.Error().Err(err).Msg("timeout sweep failed")
				continue
			}
			if len(transitioned) > 0 {
				sw.svc.log.Info().Int("count", len(transitioned)).Msg("swept timed-out tasks")
			}
		}
	}
}
