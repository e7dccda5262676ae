// Package model defines the three persisted entities — Queue, Task, and
// Worker — as plain Go structs with bson/json tags matching the document
// store's field names one to one.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/fsm"
)

// Queue is a named, password-protected namespace owning tasks and workers.
type Queue struct {
	ID           string         `bson:"_id" json:"id"`
	QueueName    string         `bson:"queue_name" json:"queue_name"`
	PasswordHash string         `bson:"password" json:"-"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	LastModified time.Time      `bson:"last_modified" json:"last_modified"`
	Metadata     map[string]any `bson:"metadata" json:"metadata"`
}

// Task is a unit of work owned by exactly one Queue.
type Task struct {
	ID               string         `bson:"_id" json:"id"`
	QueueID          string         `bson:"queue_id" json:"queue_id"`
	Status           fsm.TaskState  `bson:"status" json:"status"`
	TaskName         string         `bson:"task_name" json:"task_name,omitempty"`
	Args             map[string]any `bson:"args" json:"args"`
	Cmd              any            `bson:"cmd" json:"cmd,omitempty"`
	Metadata         map[string]any `bson:"metadata" json:"metadata"`
	Priority         int            `bson:"priority" json:"priority"`
	Retries          int            `bson:"retries" json:"retries"`
	MaxRetries       int            `bson:"max_retries" json:"max_retries"`
	CreatedAt        time.Time      `bson:"created_at" json:"created_at"`
	StartTime        *time.Time     `bson:"start_time" json:"start_time,omitempty"`
	LastHeartbeat    *time.Time     `bson:"last_heartbeat" json:"last_heartbeat,omitempty"`
	LastModified     time.Time      `bson:"last_modified" json:"last_modified"`
	HeartbeatTimeout *float64       `bson:"heartbeat_timeout" json:"heartbeat_timeout,omitempty"`
	TaskTimeout      *int           `bson:"task_timeout" json:"task_timeout,omitempty"`
	WorkerID         *string        `bson:"worker_id" json:"worker_id,omitempty"`
	Summary          map[string]any `bson:"summary" json:"summary"`
}

// Worker is an executor registered under a Queue.
type Worker struct {
	ID           string          `bson:"_id" json:"id"`
	QueueID      string          `bson:"queue_id" json:"queue_id"`
	WorkerName   string          `bson:"worker_name" json:"worker_name,omitempty"`
	Status       fsm.WorkerState `bson:"status" json:"status"`
	Retries      int             `bson:"retries" json:"retries"`
	MaxRetries   int             `bson:"max_retries" json:"max_retries"`
	Metadata     map[string]any  `bson:"metadata" json:"metadata"`
	CreatedAt    time.Time       `bson:"created_at" json:"created_at"`
	LastModified time.Time       `bson:"last_modified" json:"last_modified"`
}

// Priority defaults, mirroring the three named levels the original source
// exposes (callers may also pass an arbitrary integer).
const (
	PriorityLow     = 0
	PriorityDefault = 10
	PriorityHigh    = 20
)

// DefaultMaxRetries is applied to tasks and workers when the caller omits
// max_retries.
const DefaultMaxRetries = 3
