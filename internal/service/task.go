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

// CreateTask enqueues a new task, grounded on database.py's create_task: a
// task must carry at least one of args or cmd, and starts PENDING with no
// worker, no heartbeat, and zero retries.
func (s *Service) CreateTask(ctx context.Context, queueID, taskName string, args map[string]any, cmd any, metadata map[string]any, heartbeatTimeout *float64, taskTimeout *int, maxRetries, priority *int) (*model.Task, error) {
	if len(args) == 0 && cmd == nil {
		return nil, invalidInput("task must specify args or cmd")
	}
	resolvedMaxRetries := model.DefaultMaxRetries
	if maxRetries != nil {
		resolvedMaxRetries = *maxRetries
	}
	resolvedPriority := model.PriorityDefault
	if priority != nil {
		resolvedPriority = *priority
	}

	now := s.clock.Now()
	t := &model.Task{
		ID:               clock.NewID(),
		QueueID:          queueID,
		Status:           fsm.TaskPending,
		TaskName:         taskName,
		Args:             args,
		Cmd:              cmd,
		Metadata:         metadata,
		Priority:         resolvedPriority,
		Retries:          0,
		MaxRetries:       resolvedMaxRetries,
		CreatedAt:        now,
		LastModified:     now,
		HeartbeatTimeout: heartbeatTimeout,
		TaskTimeout:      taskTimeout,
		Summary:          map[string]any{},
	}

	if _, err := s.store.InsertOne(ctx, store.CollectionTasks, t.ToDoc()); err != nil {
		return nil, internal("create task: %v", err)
	}

	metrics.RecordTaskCreated(queueID)
	s.publish(ctx, events.EventTaskCreated, queueID, events.TaskEventData(t.ID, map[string]any{"priority": t.Priority}))
	return t, nil
}

// FetchTask atomically claims the highest-priority eligible PENDING task,
// grounded on database.py's fetch_task. Candidates are tried in
// (priority desc, last_modified asc, created_at asc) order; each is claimed
// via a compare-and-swap FindOneAndUpdate keyed on status=PENDING so that
// under concurrent callers racing the same candidate, exactly one succeeds
// and the rest fall through to the next candidate. Returns (nil, nil) if no
// eligible task exists — that is not an error.
func (s *Service) FetchTask(ctx context.Context, queueID, workerID, etaMax string, heartbeatTimeout *float64, startHeartbeat bool, requiredFields map[string]any, extraFilter bson.M) (*model.Task, error) {
	var taskTimeout *int
	if etaMax != "" {
		secs, err := parseTimeout(etaMax)
		if err != nil {
			return nil, err
		}
		taskTimeout = &secs
	}
	if !startHeartbeat && taskTimeout == nil {
		return nil, invalidInput("eta_max is required when start_heartbeat is false")
	}

	if workerID != "" {
		workerDoc, err := s.store.FindOne(ctx, store.CollectionWorkers, bson.M{"_id": workerID, "queue_id": queueID})
		if err != nil {
			return nil, internal("look up worker: %v", err)
		}
		worker := model.WorkerFromDoc(workerDoc)
		if worker == nil {
			return nil, notFound("worker %q not found", workerID)
		}
		if worker.Status != fsm.WorkerActive {
			return nil, forbidden("worker %q is not active", workerID)
		}
	}

	requiredFilter := store.RequiredFieldsFilter(requiredFields, "args")
	merged := store.MergeFilter(requiredFilter, extraFilter)
	sanitized, err := store.SanitizeQuery(queueID, merged)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	query := bson.M{}
	for k, v := range sanitized {
		query[k] = v
	}
	query["status"] = string(fsm.TaskPending)

	opts := store.FindOptions{
		Sort: bson.D{
			{Key: "priority", Value: -1},
			{Key: "last_modified", Value: 1},
			{Key: "created_at", Value: 1},
		},
	}
	candidates, err := s.store.Find(ctx, store.CollectionTasks, query, opts)
	if err != nil {
		return nil, internal("find candidate tasks: %v", err)
	}

	now := s.clock.Now()
	for _, doc := range candidates {
		candidate := model.TaskFromDoc(doc)
		if len(requiredFields) > 0 && !store.ArgMatch(requiredFields, candidate.Args) {
			continue
		}

		set := bson.M{
			"status":        string(fsm.TaskRunning),
			"start_time":    now,
			"last_modified": now,
		}
		if startHeartbeat {
			set["last_heartbeat"] = now
		} else {
			set["last_heartbeat"] = nil
		}
		if workerID != "" {
			set["worker_id"] = workerID
		}
		if taskTimeout != nil {
			set["task_timeout"] = *taskTimeout
		}
		if heartbeatTimeout != nil {
			set["heartbeat_timeout"] = *heartbeatTimeout
		}

		claimFilter := bson.M{"_id": candidate.ID, "status": string(fsm.TaskPending)}
		result, err := s.store.FindOneAndUpdate(ctx, store.CollectionTasks, claimFilter, bson.M{"$set": set})
		if err != nil {
			return nil, internal("claim task: %v", err)
		}
		if result == nil {
			// lost the race to another fetcher; try the next candidate
			continue
		}

		claimed := model.TaskFromDoc(result)
		metrics.RecordTaskFetched(queueID)
		s.publish(ctx, events.EventTaskRunning, queueID, events.TaskEventData(claimed.ID, map[string]any{"worker_id": workerID}))
		return claimed, nil
	}

	return nil, nil
}

// RefreshTaskHeartbeat records that a worker is still alive on a running
// task. It never raises on a stale/unknown task id — the caller only learns
// via the returned bool, matching database.py's refresh_task_heartbeat.
func (s *Service) RefreshTaskHeartbeat(ctx context.Context, queueID, taskID string) (bool, error) {
	n, err := s.store.UpdateOne(ctx, store.CollectionTasks,
		bson.M{"_id": taskID, "queue_id": queueID},
		bson.M{"$set": bson.M{"last_heartbeat": s.clock.Now()}},
	)
	if err != nil {
		return false, internal("refresh heartbeat: %v", err)
	}
	return n > 0, nil
}

// WorkerReportTaskStatus is the worker-authenticated report path: it first
// verifies the reporting worker actually owns the task (409 otherwise),
// grounded on database.py's worker_report_task_status.
func (s *Service) WorkerReportTaskStatus(ctx context.Context, queueID, taskID, workerID, reportStatus string, summaryUpdate map[string]any) error {
	task, err := s.loadTask(ctx, queueID, taskID)
	if err != nil {
		return err
	}
	if task.WorkerID == nil || *task.WorkerID != workerID {
		return conflict("task %q is not owned by worker %q", taskID, workerID)
	}
	return s.reportTaskStatus(ctx, queueID, taskID, task, reportStatus, summaryUpdate)
}

// ReportTaskStatus is the privileged report path used by administrative
// callers: it skips the worker-ownership check database.py's
// report_task_status likewise omits.
func (s *Service) ReportTaskStatus(ctx context.Context, queueID, taskID, reportStatus string, summaryUpdate map[string]any) error {
	task, err := s.loadTask(ctx, queueID, taskID)
	if err != nil {
		return err
	}
	return s.reportTaskStatus(ctx, queueID, taskID, task, reportStatus, summaryUpdate)
}

// reportTaskStatus is the shared FSM-driven core of both report paths,
// grounded on database.py's _report_task_status. A "failed" report that
// leaves the task owned by a worker cascades into that worker's own FSM,
// mirroring the original's call into _report_worker_status.
func (s *Service) reportTaskStatus(ctx context.Context, queueID, taskID string, task *model.Task, reportStatus string, summaryUpdate map[string]any) error {
	taskFSM := fsm.NewTaskFSM(task.Status, task.Retries, task.MaxRetries)

	var next fsm.TaskFSM
	var err error
	switch reportStatus {
	case "success":
		next, err = taskFSM.Complete()
	case "failed":
		next, err = taskFSM.Fail()
	case "cancelled":
		next, err = taskFSM.Cancel()
	default:
		return invalidInput("invalid report_status %q", reportStatus)
	}
	if err != nil {
		return invalidInput("%v", err)
	}

	if reportStatus == "failed" && task.WorkerID != nil {
		if err := s.reportWorkerStatus(ctx, queueID, *task.WorkerID, "failed"); err != nil {
			return err
		}
	}

	if reportStatus == "failed" && next.State == fsm.TaskPending {
		metrics.RecordTaskRetry(queueID)
	} else if next.State == fsm.TaskSuccess || next.State == fsm.TaskFailed || next.State == fsm.TaskCancelled {
		duration := 0.0
		if task.StartTime != nil {
			duration = s.clock.Now().Sub(*task.StartTime).Seconds()
		}
		metrics.RecordTaskCompletion(queueID, string(next.State), duration)
	}

	set := bson.M{
		"status":        string(next.State),
		"retries":       next.Retries,
		"last_modified": s.clock.Now(),
		"worker_id":     nil,
	}
	for k, v := range store.AddKeyPrefix(summaryUpdate, "summary.") {
		set[k] = v
	}

	if _, err := s.store.UpdateOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID}, bson.M{"$set": set}); err != nil {
		return internal("report task status: %v", err)
	}

	s.publish(ctx, taskEventFor(next.State), queueID, events.TaskEventData(taskID, map[string]any{"retries": next.Retries}))
	return nil
}

// UpdateTask applies a caller-supplied partial update to task_setting
// fields, grounded on database.py's update_task. When resetPending is set
// (the default in the original), the task is also reset back to PENDING
// with retries cleared — the standard "edit and requeue" path.
func (s *Service) UpdateTask(ctx context.Context, queueID, taskID string, update bson.M, resetPending bool) error {
	sanitized, err := store.SanitizeUpdate(update, false)
	if err != nil {
		return invalidInput("%v", err)
	}
	set, _ := sanitized["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["last_modified"] = s.clock.Now()
	if resetPending {
		set["status"] = string(fsm.TaskPending)
		set["retries"] = 0
	}

	n, err := s.store.UpdateOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID}, bson.M{"$set": set})
	if err != nil {
		return internal("update task: %v", err)
	}
	if n == 0 {
		return notFound("task %q not found", taskID)
	}
	return nil
}

// CancelTask transitions a task to CANCELLED through TaskFSM. SPEC_FULL.md
// resolves this path through the FSM rather than database.py's direct
// unconditional status write, so cancelling a SUCCESS/FAILED/CANCELLED
// task is rejected instead of silently overwriting a terminal state.
func (s *Service) CancelTask(ctx context.Context, queueID, taskID string) error {
	task, err := s.loadTask(ctx, queueID, taskID)
	if err != nil {
		return err
	}
	taskFSM := fsm.NewTaskFSM(task.Status, task.Retries, task.MaxRetries)
	next, err := taskFSM.Cancel()
	if err != nil {
		return invalidInput("%v", err)
	}

	set := bson.M{
		"status":        string(next.State),
		"last_modified": s.clock.Now(),
	}
	if _, err := s.store.UpdateOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID}, bson.M{"$set": set}); err != nil {
		return internal("cancel task: %v", err)
	}

	s.publish(ctx, events.EventTaskCancelled, queueID, events.TaskEventData(taskID, nil))
	return nil
}

// DeleteTask permanently removes a task, grounded on database.py's
// delete_task.
func (s *Service) DeleteTask(ctx context.Context, queueID, taskID string) error {
	n, err := s.store.DeleteOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID})
	if err != nil {
		return internal("delete task: %v", err)
	}
	if n == 0 {
		return notFound("task %q not found", taskID)
	}
	return nil
}

// GetTask is the unauthenticated read helper behind database.py's get_task.
func (s *Service) GetTask(ctx context.Context, queueID, taskID string) (*model.Task, error) {
	doc, err := s.store.FindOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID})
	if err != nil {
		return nil, internal("get task: %v", err)
	}
	return model.TaskFromDoc(doc), nil
}

func (s *Service) loadTask(ctx context.Context, queueID, taskID string) (*model.Task, error) {
	doc, err := s.store.FindOne(ctx, store.CollectionTasks, bson.M{"_id": taskID, "queue_id": queueID})
	if err != nil {
		return nil, internal("load task: %v", err)
	}
	task := model.TaskFromDoc(doc)
	if task == nil {
		return nil, notFound("task %q not found", taskID)
	}
	return task, nil
}

// taskEventFor maps a post-report FSM state to the event broadcast for it.
// A "failed" report that still has retries left lands back on PENDING
// rather than FAILED; that case is reported as EventTaskFailed too, since
// the event describes what the worker reported, not the resulting state.
func taskEventFor(state fsm.TaskState) events.EventType {
	switch state {
	case fsm.TaskSuccess:
		return events.EventTaskSuccess
	case fsm.TaskCancelled:
		return events.EventTaskCancelled
	default:
		return events.EventTaskFailed
	}
}
