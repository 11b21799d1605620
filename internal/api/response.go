package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/sessionlock"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding failure can still change the status code
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// isValidationError reports errors caused by a bad request body.
func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidPreConviction) ||
		errors.Is(err, models.ErrInvalidPostConviction) ||
		errors.Is(err, models.ErrEmptyMessage) ||
		errors.Is(err, models.ErrMessageTooLong)
}

// writeFlowError maps conversation engine errors onto HTTP statuses.
func writeFlowError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, flow.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, flow.ErrSessionInactive):
		writeJSONResponse(w, http.StatusConflict, models.Error("Session is no longer active"))
	case errors.Is(err, sessionlock.ErrLockTimeout):
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Session is busy, try again"))
	default:
		slog.Error("Server."+op+": request failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
