// Package audit defines the append-only action log written as a side
// effect of lifecycle transitions and direct commands.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Well-known action names. Stored as strings so the log stays readable
// without a lookup table.
const (
	ActionPrescriptionCreated   = "prescription.created"
	ActionPrescriptionAssigned  = "prescription.assigned"
	ActionPrescriptionDispensed = "prescription.dispensed"
	ActionPrescriptionDelivered = "prescription.delivered"
	ActionPrescriptionStatus    = "prescription.status_changed"
	ActionBeneficiaryCreated    = "beneficiary.created"
	ActionPharmacyCreated       = "pharmacy.created"
)

// Entry is one audit log row.
type Entry struct {
	ID             int64      `json:"id"`
	Action         string     `json:"action"`
	Details        string     `json:"details"`
	ActorID        int64      `json:"actor_id"`
	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty"`
	PharmacyID     *int64     `json:"pharmacy_id,omitempty"`
	At             time.Time  `json:"at"`
}
