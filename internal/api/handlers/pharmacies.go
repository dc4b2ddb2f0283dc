package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/auth"
	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/pharmacy"
	"github.com/carelink/rx-lifecycle/internal/infrastructure/postgres"
)

// PharmacyHandler is thin CRUD over the pharmacy registry. Writes are
// restricted to admin roles.
type PharmacyHandler struct {
	store  *postgres.PharmacyStore
	logger *zap.Logger
}

// NewPharmacyHandler creates a new handler.
func NewPharmacyHandler(store *postgres.PharmacyStore, logger *zap.Logger) *PharmacyHandler {
	return &PharmacyHandler{store: store, logger: logger}
}

// Routes returns the handler routes.
func (h *PharmacyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Deactivate)
	return r
}

type pharmacyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// Create handles POST /pharmacies.
func (h *PharmacyHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req pharmacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	p := &pharmacy.Pharmacy{Name: req.Name, Address: req.Address, Phone: req.Phone, Email: req.Email}
	if err := h.store.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /pharmacies.
func (h *PharmacyHandler) List(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pharmacies)
}

// Get handles GET /pharmacies/{id}.
func (h *PharmacyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /pharmacies/{id}.
func (h *PharmacyHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	var req pharmacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	p := &pharmacy.Pharmacy{ID: id, Name: req.Name, Address: req.Address, Phone: req.Phone, Email: req.Email}
	if err := h.store.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Deactivate handles DELETE /pharmacies/{id} (soft delete).
func (h *PharmacyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor := auth.FromContext(r.Context())
	if actor.Role != auth.RoleSuperAdmin && actor.Role != auth.RoleSystemAdmin {
		writeError(w, domain.ErrForbidden)
		return false
	}
	return true
}

func parseInt64(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid "+param)
		return 0, false
	}
	return id, true
}
