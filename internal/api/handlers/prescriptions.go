package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
	"github.com/carelink/rx-lifecycle/internal/lifecycle"
)

// PrescriptionHandler exposes the lifecycle commands over HTTP.
type PrescriptionHandler struct {
	svc    *lifecycle.Service
	logger *zap.Logger
}

// NewPrescriptionHandler creates a new handler.
func NewPrescriptionHandler(svc *lifecycle.Service, logger *zap.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	r.Post("/{id}/assign", h.Assign)
	r.Post("/{id}/dispense", h.Dispense)
	r.Post("/{id}/deliver", h.Deliver)
	r.Post("/{id}/hold", h.Hold)
	r.Post("/{id}/resume", h.Resume)
	r.Post("/{id}/reject", h.Reject)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/payment/require", h.RequirePayment)
	r.Post("/{id}/payment/confirm", h.ConfirmPayment)
	r.Post("/{id}/ready", h.ReadyForPickup)
	return r
}

// CreateRequest is the body for registering a prescription.
type CreateRequest struct {
	MainMemberID  int64     `json:"main_member_id"`
	BeneficiaryID int64     `json:"beneficiary_id"`
	DoctorID      *int64    `json:"doctor_id,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Notes         string    `json:"notes,omitempty"`
	FileRefs      []string  `json:"file_refs,omitempty"`
}

// prescriptionView is the wire representation of the aggregate.
type prescriptionView struct {
	ID                 uuid.UUID `json:"id"`
	MainMemberID       int64     `json:"main_member_id"`
	BeneficiaryID      int64     `json:"beneficiary_id"`
	DoctorID           *int64    `json:"doctor_id,omitempty"`
	AssignedPharmacyID *int64    `json:"assigned_pharmacy_id,omitempty"`
	Status             string    `json:"status"`
	IssuedAt           time.Time `json:"issued_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	Notes              string    `json:"notes,omitempty"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func viewOf(p *prescription.Prescription) prescriptionView {
	return prescriptionView{
		ID:                 p.ID(),
		MainMemberID:       p.MainMemberID(),
		BeneficiaryID:      p.BeneficiaryID(),
		DoctorID:           p.DoctorID(),
		AssignedPharmacyID: p.AssignedPharmacyID(),
		Status:             string(p.Status()),
		IssuedAt:           p.IssuedAt(),
		ExpiresAt:          p.ExpiresAt(),
		Notes:              p.Notes(),
		Version:            p.Version(),
		CreatedAt:          p.CreatedAt(),
		UpdatedAt:          p.UpdatedAt(),
	}
}

// Create handles POST /prescriptions.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.MainMemberID <= 0 || req.BeneficiaryID <= 0 {
		badRequest(w, "main_member_id and beneficiary_id are required")
		return
	}
	if req.IssuedAt.IsZero() || req.ExpiresAt.IsZero() {
		badRequest(w, "issued_at and expires_at are required")
		return
	}

	p, err := h.svc.Create(r.Context(), lifecycle.CreateParams{
		MainMemberID:  req.MainMemberID,
		BeneficiaryID: req.BeneficiaryID,
		DoctorID:      req.DoctorID,
		IssuedAt:      req.IssuedAt,
		ExpiresAt:     req.ExpiresAt,
		Notes:         req.Notes,
		FileRefs:      req.FileRefs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(p))
}

// List handles GET /prescriptions with optional status and limit filters.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	f := prescription.Filter{
		Status: prescription.Status(r.URL.Query().Get("status")),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		f.Limit = limit
	}

	prescriptions, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]prescriptionView, 0, len(prescriptions))
	for _, p := range prescriptions {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

// History handles GET /prescriptions/{id}/history.
func (h *PrescriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	changes, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// AssignRequest is the body for routing a prescription to a pharmacy.
type AssignRequest struct {
	PharmacyID int64 `json:"pharmacy_id"`
}

// Assign handles POST /prescriptions/{id}/assign.
func (h *PrescriptionHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.PharmacyID <= 0 {
		badRequest(w, "pharmacy_id is required")
		return
	}

	p, err := h.svc.AssignToPharmacy(r.Context(), id, req.PharmacyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

// DispenseRequest is the body for recording a dispense.
type DispenseRequest struct {
	Partial bool   `json:"partial"`
	Note    string `json:"note,omitempty"`
}

// Dispense handles POST /prescriptions/{id}/dispense.
func (h *PrescriptionHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req DispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	p, err := h.svc.CompleteDispense(r.Context(), id, req.Partial, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

// Deliver handles POST /prescriptions/{id}/deliver.
func (h *PrescriptionHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.MarkDelivered)
}

// reasonRequest is the shared body for transitions carrying a reason.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// Hold handles POST /prescriptions/{id}/hold.
func (h *PrescriptionHandler) Hold(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, h.svc.Hold)
}

// Resume handles POST /prescriptions/{id}/resume.
func (h *PrescriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Resume)
}

// Reject handles POST /prescriptions/{id}/reject.
func (h *PrescriptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, h.svc.Reject)
}

// Cancel handles POST /prescriptions/{id}/cancel.
func (h *PrescriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, h.svc.Cancel)
}

// RequirePayment handles POST /prescriptions/{id}/payment/require.
func (h *PrescriptionHandler) RequirePayment(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.RequirePayment)
}

// ConfirmPayment handles POST /prescriptions/{id}/payment/confirm.
func (h *PrescriptionHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.ConfirmPayment)
}

// ReadyForPickup handles POST /prescriptions/{id}/ready.
func (h *PrescriptionHandler) ReadyForPickup(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.MarkReadyForPickup)
}

func (h *PrescriptionHandler) simpleTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	p, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *PrescriptionHandler) reasonTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error)) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Reason == "" {
		badRequest(w, "reason is required")
		return
	}
	p, err := fn(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *PrescriptionHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid prescription id")
		return uuid.Nil, false
	}
	return id, true
}
