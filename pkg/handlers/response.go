package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps err to a status and error code. Load failures are logged
// with credentials redacted and reported with their generic user message.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Internal server error"

	var lf *apperrors.LoadFailure
	switch {
	case errors.As(err, &lf):
		logger.Error("Load failure",
			zap.String("phase", string(lf.Phase)),
			zap.String("op", lf.Op),
			zap.String("error", logging.SanitizeError(lf.Err)))
		status, code, message = http.StatusBadGateway, "load_failed", lf.UserMessage()
	case errors.Is(err, apperrors.ErrSessionBusy):
		status, code, message = http.StatusConflict, "session_busy", err.Error()
	case errors.Is(err, apperrors.ErrNotResolved):
		status, code, message = http.StatusConflict, "not_resolved", err.Error()
	case errors.Is(err, apperrors.ErrInvalidChoice), errors.Is(err, apperrors.ErrInvalidStage):
		status, code, message = http.StatusBadRequest, "invalid_choice", err.Error()
	case errors.Is(err, apperrors.ErrNoMatchingDataset), errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrSessionNotFound):
		status, code, message = http.StatusUnauthorized, "session_expired", err.Error()
	default:
		logger.Error("Request failed", zap.String("error", logging.SanitizeError(err)))
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
