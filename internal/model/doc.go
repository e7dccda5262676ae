package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/fsm"
)

// Documents stored through store.Store never hold pointer types: a nullable
// field is either absent/nil or a plain value, matching pymongo's
// dict-of-anything documents. ToDoc/FromXxxDoc convert between that wire
// shape and the pointer-bearing Go structs callers work with.

// ToDoc converts q into the bson.M shape persisted in the queues collection.
func (q *Queue) ToDoc() bson.M {
	return bson.M{
		"_id":           q.ID,
		"queue_name":    q.QueueName,
		"password":      q.PasswordHash,
		"created_at":    q.CreatedAt,
		"last_modified": q.LastModified,
		"metadata":      orEmptyMap(q.Metadata),
	}
}

// QueueFromDoc reconstructs a Queue from a stored document.
func QueueFromDoc(doc bson.M) *Queue {
	if doc == nil {
		return nil
	}
	return &Queue{
		ID:           getString(doc, "_id"),
		QueueName:    getString(doc, "queue_name"),
		PasswordHash: getString(doc, "password"),
		CreatedAt:    getTime(doc, "created_at"),
		LastModified: getTime(doc, "last_modified"),
		Metadata:     getMap(doc, "metadata"),
	}
}

// ToDoc converts t into the bson.M shape persisted in the tasks collection.
func (t *Task) ToDoc() bson.M {
	return bson.M{
		"_id":               t.ID,
		"queue_id":          t.QueueID,
		"status":            string(t.Status),
		"task_name":         t.TaskName,
		"args":              orEmptyMap(t.Args),
		"cmd":               t.Cmd,
		"metadata":          orEmptyMap(t.Metadata),
		"priority":          t.Priority,
		"retries":           t.Retries,
		"max_retries":       t.MaxRetries,
		"created_at":        t.CreatedAt,
		"start_time":        ptrTimeToAny(t.StartTime),
		"last_heartbeat":    ptrTimeToAny(t.LastHeartbeat),
		"last_modified":     t.LastModified,
		"heartbeat_timeout": ptrFloatToAny(t.HeartbeatTimeout),
		"task_timeout":      ptrIntToAny(t.TaskTimeout),
		"worker_id":         ptrStringToAny(t.WorkerID),
		"summary":           orEmptyMap(t.Summary),
	}
}

// TaskFromDoc reconstructs a Task from a stored document.
func TaskFromDoc(doc bson.M) *Task {
	if doc == nil {
		return nil
	}
	return &Task{
		ID:               getString(doc, "_id"),
		QueueID:          getString(doc, "queue_id"),
		Status:           fsm.TaskState(getString(doc, "status")),
		TaskName:         getString(doc, "task_name"),
		Args:             getMap(doc, "args"),
		Cmd:              doc["cmd"],
		Metadata:         getMap(doc, "metadata"),
		Priority:         getInt(doc, "priority"),
		Retries:          getInt(doc, "retries"),
		MaxRetries:       getInt(doc, "max_retries"),
		CreatedAt:        getTime(doc, "created_at"),
		StartTime:        getTimePtr(doc, "start_time"),
		LastHeartbeat:    getTimePtr(doc, "last_heartbeat"),
		LastModified:     getTime(doc, "last_modified"),
		HeartbeatTimeout: getFloatPtr(doc, "heartbeat_timeout"),
		TaskTimeout:      getIntPtr(doc, "task_timeout"),
		WorkerID:         getStringPtr(doc, "worker_id"),
		Summary:          getMap(doc, "summary"),
	}
}

// ToDoc converts w into the bson.M shape persisted in the workers collection.
func (w *Worker) ToDoc() bson.M {
	return bson.M{
		"_id":           w.ID,
		"queue_id":      w.QueueID,
		"worker_name":   w.WorkerName,
		"status":        string(w.Status),
		"retries":       w.Retries,
		"max_retries":   w.MaxRetries,
		"metadata":      orEmptyMap(w.Metadata),
		"created_at":    w.CreatedAt,
		"last_modified": w.LastModified,
	}
}

// WorkerFromDoc reconstructs a Worker from a stored document.
func WorkerFromDoc(doc bson.M) *Worker {
	if doc == nil {
		return nil
	}
	return &Worker{
		ID:           getString(doc, "_id"),
		QueueID:      getString(doc, "queue_id"),
		WorkerName:   getString(doc, "worker_name"),
		Status:       fsm.WorkerState(getString(doc, "status")),
		Retries:      getInt(doc, "retries"),
		MaxRetries:   getInt(doc, "max_retries"),
		Metadata:     getMap(doc, "metadata"),
		CreatedAt:    getTime(doc, "created_at"),
		LastModified: getTime(doc, "last_modified"),
	}
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func ptrTimeToAny(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func ptrFloatToAny(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func ptrIntToAny(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func ptrStringToAny(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func getString(doc bson.M, key string) string {
	s, _ := doc[key].(string)
	return s
}

func getStringPtr(doc bson.M, key string) *string {
	s, ok := doc[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func getInt(doc bson.M, key string) int {
	return int(getFloat(doc, key))
}

func getIntPtr(doc bson.M, key string) *int {
	if doc[key] == nil {
		return nil
	}
	n := int(getFloat(doc, key))
	return &n
}

func getFloat(doc bson.M, key string) float64 {
	switch n := doc[key].(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func getFloatPtr(doc bson.M, key string) *float64 {
	if doc[key] == nil {
		return nil
	}
	f := getFloat(doc, key)
	return &f
}

func getTime(doc bson.M, key string) time.Time {
	t, _ := doc[key].(time.Time)
	return t
}

func getTimePtr(doc bson.M, key string) *time.Time {
	t, ok := doc[key].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func getMap(doc bson.M, key string) map[string]any {
	switch m := doc[key].(type) {
	case bson.M:
		return map[string]any(m)
	case map[string]any:
		return m
	default:
		return map[string]any{}
	}
}
