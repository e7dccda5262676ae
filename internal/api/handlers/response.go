package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/service"
)

// ErrorResponse is the JSON body returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}

// respondServiceError maps a *service.Error onto its HTTP status, per
// spec.md §7's Kind -> status-code table. An error that isn't a
// *service.Error is treated as an unexpected internal failure.
func respondServiceError(w http.ResponseWriter, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		logger.Error().Err(err).Msg("unhandled internal error")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch svcErr.Kind {
	case service.KindInvalidInput:
		status = http.StatusBadRequest
	case service.KindUnauthorized:
		status = http.StatusUnauthorized
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindInternal:
		status = http.StatusInternalServerError
		logger.Error().Str("detail", svcErr.Detail).Msg("internal service error")
	}

	respondError(w, status, svcErr.Detail)
}
