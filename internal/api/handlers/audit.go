package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/infrastructure/postgres"
)

// AuditHandler exposes the audit log to admins.
type AuditHandler struct {
	store  *postgres.AuditStore
	logger *zap.Logger
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(store *postgres.AuditStore, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// Routes returns the handler routes.
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Recent)
	return r
}

// Recent handles GET /audit?limit=N.
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
