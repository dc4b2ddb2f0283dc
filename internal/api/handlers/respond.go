// Package handlers provides HTTP handlers for the lifecycle API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carelink/rx-lifecycle/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Callers
// see a typed reason, never a raw stack or driver message.
func writeError(w http.ResponseWriter, err error) {
	var re *domain.RuleError
	switch {
	case errors.As(err, &re):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": re.Msg, "reason": "rule_violation"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "reason": "not_found"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden", "reason": "forbidden"})
	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflicting update, retry the command", "reason": "conflict"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "reason": "error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg, "reason": "validation"})
}
