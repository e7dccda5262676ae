package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"

	apiMiddleware "github.com/maumercado/labtasker-go/internal/api/middleware"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/service"
	"github.com/maumercado/labtasker-go/internal/store"
)

// AdminHandler handles the generic collection query/update surface and the
// service health probe, grounded on the teacher's AdminHandler.
type AdminHandler struct {
	svc *service.Service
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *service.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"store":  "disconnected",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"store":  "connected",
	})
}

// QueryCollectionRequest is the body of POST /api/v1/collections/{collection}/query.
// query_expr carries the whitelisted Python-expression filter language
// (spec.md §4.3/§9) as an alternative to a native store filter document in
// query; at most one of the two may be given.
type QueryCollectionRequest struct {
	Query     bson.M `json:"query,omitempty"`
	QueryExpr string `json:"query_expr,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
	Offset    int64  `json:"offset,omitempty"`
}

// QueryCollection handles POST /api/v1/collections/{collection}/query, the
// generic escape hatch behind database.py's query_collection.
func (h *AdminHandler) QueryCollection(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	collection := chi.URLParam(r, "collection")

	var req QueryCollectionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	query := req.Query
	if req.QueryExpr != "" {
		if len(query) > 0 {
			respondError(w, http.StatusBadRequest, "query and query_expr are mutually exclusive")
			return
		}
		parsed, err := store.ParseExpression(req.QueryExpr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		query = parsed
	}

	docs, err := h.svc.QueryCollection(r.Context(), queueID, collection, query, req.Limit, req.Offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// UpdateCollectionRequest is the body of PATCH /api/v1/collections/{collection}.
type UpdateCollectionRequest struct {
	Query  bson.M `json:"query"`
	Update bson.M `json:"update"`
}

// UpdateCollection handles PATCH /api/v1/collections/{collection}, the
// generic escape hatch behind database.py's update_collection.
func (h *AdminHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	queueID, _ := apiMiddleware.QueueID(r.Context())
	collection := chi.URLParam(r, "collection")

	var req UpdateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.svc.UpdateCollection(r.Context(), queueID, collection, req.Query, req.Update)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.Info().Str("collection", collection).Int64("matched", n).Msg("collection updated")
	respondJSON(w, http.StatusOK, map[string]any{"matched": n})
}
