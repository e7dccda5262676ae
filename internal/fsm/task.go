// Package fsm implements the task and worker state machines as pure
// value transitions: no storage, no side effects, just (state, counters) in
// and (state, counters) or an error out.
package fsm

import "fmt"

// TaskState is one of the five legal states a task may occupy.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskSuccess   TaskState = "SUCCESS"
	TaskFailed    TaskState = "FAILED"
	TaskCancelled TaskState = "CANCELLED"
)

// ErrInvalidTransition is returned whenever a transition is attempted from a
// state/event pair that has no entry in the transition table.
type ErrInvalidTransition struct {
	From  TaskState
	Event string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: cannot apply %q from state %q", e.Event, e.From)
}

// TaskFSM is the pure (state, retries, max_retries) tuple described by the
// task lifecycle. Every transition method returns a new value; the receiver
// is never mutated.
type TaskFSM struct {
	State      TaskState
	Retries    int
	MaxRetries int
}

// NewTaskFSM constructs an FSM value directly from known state/counters.
func NewTaskFSM(state TaskState, retries, maxRetries int) TaskFSM {
	return TaskFSM{State: state, Retries: retries, MaxRetries: maxRetries}
}

// Fetch transitions PENDING -> RUNNING.
func (f TaskFSM) Fetch() (TaskFSM, error) {
	if f.State != TaskPending {
		return f, &ErrInvalidTransition{From: f.State, Event: "fetch"}
	}
	f.State = TaskRunning
	return f, nil
}

// Complete transitions RUNNING -> SUCCESS.
func (f TaskFSM) Complete() (TaskFSM, error) {
	if f.State != TaskRunning {
		return f, &ErrInvalidTransition{From: f.State, Event: "complete"}
	}
	f.State = TaskSuccess
	return f, nil
}

// Cancel transitions PENDING or RUNNING -> CANCELLED.
func (f TaskFSM) Cancel() (TaskFSM, error) {
	if f.State != TaskPending && f.State != TaskRunning {
		return f, &ErrInvalidTransition{From: f.State, Event: "cancel"}
	}
	f.State = TaskCancelled
	return f, nil
}

// Fail transitions RUNNING -> PENDING (retry) or RUNNING -> FAILED
// (retries exhausted), incrementing Retries either way.
func (f TaskFSM) Fail() (TaskFSM, error) {
	if f.State != TaskRunning {
		return f, &ErrInvalidTransition{From: f.State, Event: "fail"}
	}
	f.Retries++
	if f.Retries > f.MaxRetries {
		f.State = TaskFailed
	} else {
		f.State = TaskPending
	}
	return f, nil
}

// Reset transitions any terminal state (FAILED, CANCELLED, SUCCESS) back to
// PENDING with Retries zeroed. Used by update_task(reset_pending=true).
func (f TaskFSM) Reset() (TaskFSM, error) {
	switch f.State {
	case TaskFailed, TaskCancelled, TaskSuccess:
	default:
		return f, &ErrInvalidTransition{From: f.State, Event: "reset"}
	}
	f.State = TaskPending
	f.Retries = 0
	return f, nil
}
