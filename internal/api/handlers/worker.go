package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apiMiddleware "github.com/maumercado/labtasker-go/internal/api/middleware"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/service"
)

// WorkerHandler handles worker registration and liveness reporting.
type WorkerHandler struct {
	svc *service.Service
}

// NewWorkerHandler creates a new worker handler.
func NewWorkerHandler(svc *service.Service) *WorkerHandler {
	return &WorkerHandler{svc: svc}
}

// CreateWorkerRequest is the body of POST /api/v1/workers.
type CreateWorkerRequest struct {
	WorkerName string         `json:"worker_name,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	MaxRetries *int           `json:"max_retries,omitempty"`
}

// Create handles POST /api/v1/workers.
func (h *WorkerHandler) Create(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wk, err := h.svc.CreateWorker(r.Context(), queueID, req.WorkerName, req.Metadata, req.MaxRetries)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("worker_id", wk.ID).Str("queue_id", queueID).Msg("worker registered")
	respondJSON(w, http.StatusCreated, wk)
}

// Get handles GET /api/v1/workers/{workerID}.
func (h *WorkerHandler) Get(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	workerID := chi.URLParam(r, "workerID")

	wk, err := h.svc.GetWorker(r.Context(), queueID, workerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if wk == nil {
		respondError(w, http.StatusNotFound, "worker not found")
		return
	}

	respondJSON(w, http.StatusOK, wk)
}

// ReportWorkerStatusRequest is the body of POST /api/v1/workers/{workerID}/status.
type ReportWorkerStatusRequest struct {
	ReportStatus string `json:"report_status"`
}

// Report handles POST /api/v1/workers/{workerID}/status.
func (h *WorkerHandler) Report(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	workerID := chi.URLParam(r, "workerID")

	var req ReportWorkerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.ReportWorkerStatus(r.Context(), queueID, workerID, req.ReportStatus); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "status reported"})
}

// Delete handles DELETE /api/v1/workers/{workerID}?cascade=true.
func (h *WorkerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	workerID := chi.URLParam(r, "workerID")
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))

	if err := h.svc.DeleteWorker(r.Context(), queueID, workerID, cascade); err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("worker_id", workerID).Msg("worker deleted")
	respondJSON(w, http.StatusOK, map[string]string{"message": "worker deleted"})
}

// List handles GET /api/v1/workers, a thin wrapper over QueryCollection
// scoped to the workers collection.
func (h *WorkerHandler) List(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)

	workers, err := h.svc.QueryCollection(r.Context(), queueID, "workers", nil, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"workers": workers, "count": len(workers)})
}
