package fsm

// WorkerState is one of the three legal states a worker may occupy.
type WorkerState string

const (
	WorkerActive    WorkerState = "ACTIVE"
	WorkerSuspended WorkerState = "SUSPENDED"
	WorkerCrashed   WorkerState = "CRASHED"
)

// WorkerFSM is the pure (state, retries, max_retries) tuple describing a
// worker's liveness lifecycle.
type WorkerFSM struct {
	State      WorkerState
	Retries    int
	MaxRetries int
}

// NewWorkerFSM constructs an FSM value directly from known state/counters.
func NewWorkerFSM(state WorkerState, retries, maxRetries int) WorkerFSM {
	return WorkerFSM{State: state, Retries: retries, MaxRetries: maxRetries}
}

// Suspend transitions ACTIVE -> SUSPENDED.
func (f WorkerFSM) Suspend() (WorkerFSM, error) {
	if f.State != WorkerActive {
		return f, &ErrInvalidTransition{From: TaskState(f.State), Event: "suspend"}
	}
	f.State = WorkerSuspended
	return f, nil
}

// Activate transitions SUSPENDED or CRASHED -> ACTIVE, zeroing Retries.
func (f WorkerFSM) Activate() (WorkerFSM, error) {
	if f.State != WorkerSuspended && f.State != WorkerCrashed {
		return f, &ErrInvalidTransition{From: TaskState(f.State), Event: "activate"}
	}
	f.State = WorkerActive
	f.Retries = 0
	return f, nil
}

// Fail increments Retries on an ACTIVE worker, tipping it into CRASHED once
// Retries exceeds MaxRetries.
func (f WorkerFSM) Fail() (WorkerFSM, error) {
	if f.State != WorkerActive {
		return f, &ErrInvalidTransition{From: TaskState(f.State), Event: "fail"}
	}
	f.Retries++
	if f.Retries > f.MaxRetries {
		f.State = WorkerCrashed
	}
	return f, nil
}

// IsActive reports whether the worker is eligible for new task assignment.
func (f WorkerFSM) IsActive() bool {
	return f.State == WorkerActive
}
