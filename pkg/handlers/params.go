package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// HintsFromRequest reads download-stage hints from the query string.
func HintsFromRequest(r *http.Request) map[models.Stage]string {
	return defaults.HintsFromQuery(r.URL.Query(), models.StageOrder)
}

// ParseIntQuery reads a non-negative integer query parameter. A missing
// parameter yields def. It writes a 400 and returns false when malformed.
func ParseIntQuery(w http.ResponseWriter, r *http.Request, name string, def int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return n, true
}

// DecodeBody decodes a JSON request body into v. It writes a 400 and
// returns false on malformed input. An empty body leaves v untouched.
func DecodeBody(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}
