package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/auth"
	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/audit"
	"github.com/carelink/rx-lifecycle/internal/domain/beneficiary"
	"github.com/carelink/rx-lifecycle/internal/infrastructure/postgres"
)

// BeneficiaryHandler is thin CRUD over main-member dependents. Creation
// writes an audit entry directly; members may only touch their own.
type BeneficiaryHandler struct {
	store  *postgres.BeneficiaryStore
	audits *postgres.AuditStore
	logger *zap.Logger
}

// NewBeneficiaryHandler creates a new handler.
func NewBeneficiaryHandler(store *postgres.BeneficiaryStore, audits *postgres.AuditStore, logger *zap.Logger) *BeneficiaryHandler {
	return &BeneficiaryHandler{store: store, audits: audits, logger: logger}
}

// Routes returns the handler routes.
func (h *BeneficiaryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListByMember)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Deactivate)
	return r
}

type beneficiaryRequest struct {
	MainMemberID int64     `json:"main_member_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	Relationship string    `json:"relationship"`
}

// Create handles POST /beneficiaries.
func (h *BeneficiaryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req beneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.MainMemberID <= 0 || req.FirstName == "" || req.LastName == "" {
		badRequest(w, "main_member_id, first_name and last_name are required")
		return
	}
	if !canTouchMember(r, req.MainMemberID) {
		writeError(w, domain.ErrForbidden)
		return
	}

	b := &beneficiary.Beneficiary{
		MainMemberID: req.MainMemberID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DateOfBirth:  req.DateOfBirth,
		Relationship: req.Relationship,
	}
	if err := h.store.Create(r.Context(), b); err != nil {
		writeError(w, err)
		return
	}

	entry := audit.Entry{
		Action:  audit.ActionBeneficiaryCreated,
		Details: fmt.Sprintf("Beneficiary %d created for member %d", b.ID, b.MainMemberID),
		ActorID: auth.FromContext(r.Context()).UserID,
		At:      time.Now().UTC(),
	}
	if err := h.audits.Append(r.Context(), entry); err != nil {
		h.logger.Warn("audit append failed", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, b)
}

// ListByMember handles GET /beneficiaries?member_id=N.
func (h *BeneficiaryHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(r.URL.Query().Get("member_id"), 10, 64)
	if err != nil || memberID <= 0 {
		badRequest(w, "member_id query parameter is required")
		return
	}
	if !canTouchMember(r, memberID) {
		writeError(w, domain.ErrForbidden)
		return
	}

	beneficiaries, err := h.store.ListByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, beneficiaries)
}

// Get handles GET /beneficiaries/{id}.
func (h *BeneficiaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	b, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canTouchMember(r, b.MainMemberID) {
		writeError(w, domain.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Update handles PUT /beneficiaries/{id}.
func (h *BeneficiaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canTouchMember(r, existing.MainMemberID) {
		writeError(w, domain.ErrForbidden)
		return
	}

	var req beneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	existing.FirstName = req.FirstName
	existing.LastName = req.LastName
	existing.DateOfBirth = req.DateOfBirth
	existing.Relationship = req.Relationship
	if err := h.store.Update(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// Deactivate handles DELETE /beneficiaries/{id} (soft delete).
func (h *BeneficiaryHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !canTouchMember(r, existing.MainMemberID) {
		writeError(w, domain.ErrForbidden)
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// canTouchMember allows admins everywhere and members on their own data.
func canTouchMember(r *http.Request, mainMemberID int64) bool {
	actor := auth.FromContext(r.Context())
	switch actor.Role {
	case auth.RoleSuperAdmin, auth.RoleSystemAdmin:
		return true
	case auth.RoleMember:
		return actor.UserID == mainMemberID
	default:
		return false
	}
}
