package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	apiMiddleware "github.com/maumercado/labtasker-go/internal/api/middleware"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/service"
)

// QueueHandler handles queue lifecycle and credential-exchange requests.
type QueueHandler struct {
	svc *service.Service
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(svc *service.Service) *QueueHandler {
	return &QueueHandler{svc: svc}
}

// CreateQueueRequest is the body of POST /api/v1/queues.
type CreateQueueRequest struct {
	QueueName string         `json:"queue_name"`
	Password  string         `json:"password"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Create handles POST /api/v1/queues. Unlike every other route, this one
// carries its own credentials in the body instead of relying on Auth —
// there is nothing to authenticate against until the queue exists.
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := h.svc.CreateQueue(r.Context(), req.QueueName, req.Password, req.Metadata)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("queue_id", q.ID).Str("queue_name", q.QueueName).Msg("queue created")
	respondJSON(w, http.StatusCreated, q)
}

// TokenRequest is the body of POST /api/v1/queues/token.
type TokenRequest struct {
	QueueName string `json:"queue_name"`
	Password  string `json:"password"`
}

// IssueToken handles POST /api/v1/queues/token, exchanging a queue's
// password credentials for a short-lived session token.
func (h *QueueHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.svc.IssueSessionToken(r.Context(), req.QueueName, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Get handles GET /api/v1/queues/me.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	q, err := h.svc.GetQueue(r.Context(), queueID, "")
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if q == nil {
		respondError(w, http.StatusNotFound, "queue not found")
		return
	}

	respondJSON(w, http.StatusOK, q)
}

// UpdateQueueRequest is the body of PATCH /api/v1/queues/me.
type UpdateQueueRequest struct {
	QueueName *string        `json:"queue_name,omitempty"`
	Password  *string        `json:"password,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Update handles PATCH /api/v1/queues/me.
func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())

	var req UpdateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.UpdateQueue(r.Context(), queueID, req.QueueName, req.Password, req.Metadata); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "queue updated"})
}

// Delete handles DELETE /api/v1/queues/me?cascade=true.
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))

	n, err := h.svc.DeleteQueue(r.Context(), queueID, cascade)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("queue_id", queueID).Int64("documents_deleted", n).Msg("queue deleted")
	respondJSON(w, http.StatusOK, map[string]any{"message": "queue deleted", "documents_deleted": n})
}
