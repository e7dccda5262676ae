package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"

	apiMiddleware "github.com/maumercado/labtasker-go/internal/api/middleware"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/service"
	"github.com/maumercado/labtasker-go/internal/store"
)

// TaskHandler handles task-related HTTP requests, grounded on the
// teacher's TaskHandler — same respondJSON/respondError shape, now
// dispatching onto the Service instead of a Redis-backed queue.
type TaskHandler struct {
	svc *service.Service
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(svc *service.Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// CreateTaskRequest is the body of POST /api/v1/tasks.
type CreateTaskRequest struct {
	TaskName         string         `json:"task_name,omitempty"`
	Args             map[string]any `json:"args,omitempty"`
	Cmd              any            `json:"cmd,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	HeartbeatTimeout *float64       `json:"heartbeat_timeout,omitempty"`
	TaskTimeout      *int           `json:"task_timeout,omitempty"`
	MaxRetries       *int           `json:"max_retries,omitempty"`
	Priority         *int           `json:"priority,omitempty"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.svc.CreateTask(r.Context(), queueID, req.TaskName, req.Args, req.Cmd, req.Metadata,
		req.HeartbeatTimeout, req.TaskTimeout, req.MaxRetries, req.Priority)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("task_id", t.ID).Str("queue_id", queueID).Msg("task created")
	respondJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	t, err := h.svc.GetTask(r.Context(), queueID, taskID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// FetchTaskRequest is the body of POST /api/v1/tasks/fetch. extra_filter may
// be either a native store filter document or, via extra_filter_expr, the
// whitelisted Python-expression filter language (spec.md §4.3/§9) — e.g.
// `metadata.tag in ["a","b"]`. At most one of the two may be given.
type FetchTaskRequest struct {
	WorkerID         string         `json:"worker_id,omitempty"`
	EtaMax           string         `json:"eta_max,omitempty"`
	HeartbeatTimeout *float64       `json:"heartbeat_timeout,omitempty"`
	StartHeartbeat   bool           `json:"start_heartbeat"`
	RequiredFields   map[string]any `json:"required_fields,omitempty"`
	ExtraFilter      bson.M         `json:"extra_filter,omitempty"`
	ExtraFilterExpr  string         `json:"extra_filter_expr,omitempty"`
}

// Fetch handles POST /api/v1/tasks/fetch — a worker polling for its next
// unit of work.
func (h *TaskHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	var req FetchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	extraFilter := req.ExtraFilter
	if req.ExtraFilterExpr != "" {
		if len(extraFilter) > 0 {
			respondError(w, http.StatusBadRequest, "extra_filter and extra_filter_expr are mutually exclusive")
			return
		}
		parsed, err := store.ParseExpression(req.ExtraFilterExpr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		extraFilter = parsed
	}

	t, err := h.svc.FetchTask(r.Context(), queueID, req.WorkerID, req.EtaMax, req.HeartbeatTimeout,
		req.StartHeartbeat, req.RequiredFields, extraFilter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if t == nil {
		respondJSON(w, http.StatusOK, nil)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// Heartbeat handles POST /api/v1/tasks/{taskID}/heartbeat.
func (h *TaskHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	ok, err := h.svc.RefreshTaskHeartbeat(r.Context(), queueID, taskID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"refreshed": ok})
}

// ReportStatusRequest is the body of POST /api/v1/tasks/{taskID}/status.
type ReportStatusRequest struct {
	WorkerID      string         `json:"worker_id,omitempty"`
	ReportStatus  string         `json:"report_status"`
	SummaryUpdate map[string]any `json:"summary,omitempty"`
}

// Report handles POST /api/v1/tasks/{taskID}/status. When the request
// carries a worker_id, ownership is enforced (WorkerReportTaskStatus);
// without one, it's the privileged admin path (ReportTaskStatus).
func (h *TaskHandler) Report(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	var req ReportStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	if req.WorkerID != "" {
		err = h.svc.WorkerReportTaskStatus(r.Context(), queueID, taskID, req.WorkerID, req.ReportStatus, req.SummaryUpdate)
	} else {
		err = h.svc.ReportTaskStatus(r.Context(), queueID, taskID, req.ReportStatus, req.SummaryUpdate)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "status reported"})
}

// UpdateTaskRequest is the body of PATCH /api/v1/tasks/{taskID}.
type UpdateTaskRequest struct {
	Update       bson.M `json:"update"`
	ResetPending bool   `json:"reset_pending"`
}

// Update handles PATCH /api/v1/tasks/{taskID}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.UpdateTask(r.Context(), queueID, taskID, req.Update, req.ResetPending); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "task updated"})
}

// Cancel handles DELETE /api/v1/tasks/{taskID}.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	if err := h.svc.CancelTask(r.Context(), queueID, taskID); err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task cancelled")
	respondJSON(w, http.StatusOK, map[string]string{"message": "task cancelled"})
}

// Delete handles DELETE /api/v1/tasks/{taskID}/permanent — a harder
// removal than Cancel, which only marks the task CANCELLED.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	taskID := chi.URLParam(r, "taskID")

	if err := h.svc.DeleteTask(r.Context(), queueID, taskID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

// List handles GET /api/v1/tasks, a thin wrapper over QueryCollection
// scoped to the tasks collection.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)

	query := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		query["status"] = status
	}

	tasks, err := h.svc.QueryCollection(r.Context(), queueID, "tasks", query, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}
