// Package prescription implements the prescription aggregate and its
// lifecycle state machine. All status mutation goes through the transition
// methods below; each successful transition appends exactly one domain event.
package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/rx-lifecycle/internal/domain"
)

// Status represents the prescription lifecycle status. Statuses are
// persisted and serialized by symbolic name, never by ordinal.
type Status string

const (
	StatusPending            Status = "Pending"
	StatusUnderReview        Status = "UnderReview"
	StatusOnHold             Status = "OnHold"
	StatusPaymentPending     Status = "PaymentPending"
	StatusPartiallyDispensed Status = "PartiallyDispensed"
	StatusFullyDispensed     Status = "FullyDispensed"
	StatusReadyForPickup     Status = "ReadyForPickup"
	StatusDelivered          Status = "Delivered"
	StatusRejected           Status = "Rejected"
	StatusExpired            Status = "Expired"
	StatusCancelled          Status = "Cancelled"
)

// IsTerminal reports whether the status ends the lifecycle. Terminal
// prescriptions are never deleted and never transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func (s Status) isDispensed() bool {
	return s == StatusPartiallyDispensed || s == StatusFullyDispensed
}

// Prescription is the aggregate root for one doctor-issued prescription.
type Prescription struct {
	id                 uuid.UUID
	mainMemberID       int64
	beneficiaryID      int64
	doctorID           *int64
	assignedPharmacyID *int64
	status             Status
	issuedAt           time.Time
	expiresAt          time.Time
	notes              string
	version            int64
	createdAt          time.Time
	updatedAt          time.Time
	changes            []Event
}

// New creates a prescription in the Pending status and raises
// a CreatedEvent. The expiry must be after the issue date.
func New(mainMemberID, beneficiaryID int64, doctorID *int64, issuedAt, expiresAt time.Time, notes string) (*Prescription, error) {
	if !expiresAt.After(issuedAt) {
		return nil, domain.NewRuleError("expiry %s must be after issue date %s",
			expiresAt.Format(time.RFC3339), issuedAt.Format(time.RFC3339))
	}

	now := time.Now().UTC()
	p := &Prescription{
		id:            uuid.New(),
		mainMemberID:  mainMemberID,
		beneficiaryID: beneficiaryID,
		doctorID:      doctorID,
		status:        StatusPending,
		issuedAt:      issuedAt,
		expiresAt:     expiresAt,
		notes:         notes,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}
	p.changes = append(p.changes, CreatedEvent{
		ID:     p.id,
		Status: StatusPending,
		At:     now,
	})
	return p, nil
}

// Restored carries a persisted snapshot back into an aggregate.
type Restored struct {
	ID                 uuid.UUID
	MainMemberID       int64
	BeneficiaryID      int64
	DoctorID           *int64
	AssignedPharmacyID *int64
	Status             Status
	IssuedAt           time.Time
	ExpiresAt          time.Time
	Notes              string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Restore rebuilds an aggregate from storage without raising events.
func Restore(r Restored) *Prescription {
	return &Prescription{
		id:                 r.ID,
		mainMemberID:       r.MainMemberID,
		beneficiaryID:      r.BeneficiaryID,
		doctorID:           r.DoctorID,
		assignedPharmacyID: r.AssignedPharmacyID,
		status:             r.Status,
		issuedAt:           r.IssuedAt,
		expiresAt:          r.ExpiresAt,
		notes:              r.Notes,
		version:            r.Version,
		createdAt:          r.CreatedAt,
		updatedAt:          r.UpdatedAt,
	}
}

// Filter narrows prescription listings. Zero values mean no filtering.
type Filter struct {
	Status       Status
	PharmacyID   *int64
	MainMemberID *int64
	Limit        int
}

func (p *Prescription) ID() uuid.UUID              { return p.id }
func (p *Prescription) MainMemberID() int64        { return p.mainMemberID }
func (p *Prescription) BeneficiaryID() int64       { return p.beneficiaryID }
func (p *Prescription) DoctorID() *int64           { return p.doctorID }
func (p *Prescription) AssignedPharmacyID() *int64 { return p.assignedPharmacyID }
func (p *Prescription) Status() Status             { return p.status }
func (p *Prescription) IssuedAt() time.Time        { return p.issuedAt }
func (p *Prescription) ExpiresAt() time.Time       { return p.expiresAt }
func (p *Prescription) Notes() string              { return p.notes }
func (p *Prescription) Version() int64             { return p.version }
func (p *Prescription) CreatedAt() time.Time       { return p.createdAt }
func (p *Prescription) UpdatedAt() time.Time       { return p.updatedAt }

// Changes returns the events raised since the last commit.
func (p *Prescription) Changes() []Event { return p.changes }

// Committed bumps the in-memory version and drains pending events.
// The persistence layer calls this after a successful commit; events are
// consumed once per unit of work.
func (p *Prescription) Committed() []Event {
	events := p.changes
	p.changes = nil
	p.version++
	return events
}

// AssignToPharmacy routes the prescription to a pharmacy for review.
func (p *Prescription) AssignToPharmacy(pharmacyID int64) error {
	if p.status.IsTerminal() {
		return domain.NewRuleError("cannot assign prescription %s: status %s is terminal", p.id, p.status)
	}

	old := p.transition(StatusUnderReview)
	p.assignedPharmacyID = &pharmacyID
	p.changes = append(p.changes, AssignedToPharmacyEvent{
		ID:         p.id,
		PharmacyID: pharmacyID,
		OldStatus:  old,
		NewStatus:  StatusUnderReview,
		At:         p.updatedAt,
	})
	return nil
}

// CompleteDispense records a partial or full dispense by the assigned pharmacy.
func (p *Prescription) CompleteDispense(isPartial bool, note string) error {
	if p.assignedPharmacyID == nil {
		return domain.NewRuleError("cannot dispense prescription %s: not assigned to a pharmacy", p.id)
	}
	if p.status != StatusUnderReview {
		return domain.NewRuleError("cannot dispense prescription %s from status %s", p.id, p.status)
	}

	target := StatusFullyDispensed
	if isPartial {
		target = StatusPartiallyDispensed
	}
	old := p.transition(target)
	p.changes = append(p.changes, DispensedEvent{
		ID:        p.id,
		IsPartial: isPartial,
		Note:      note,
		OldStatus: old,
		NewStatus: target,
		At:        p.updatedAt,
	})
	return nil
}

// MarkDelivered records delivery to the member. Only valid once the
// prescription has been dispensed (or is awaiting pickup).
func (p *Prescription) MarkDelivered() error {
	if !p.status.isDispensed() && p.status != StatusReadyForPickup {
		return domain.NewRuleError("cannot deliver prescription %s from status %s", p.id, p.status)
	}

	old := p.transition(StatusDelivered)
	p.changes = append(p.changes, DeliveredEvent{
		ID:        p.id,
		OldStatus: old,
		NewStatus: StatusDelivered,
		At:        p.updatedAt,
	})
	return nil
}

// Hold pauses a prescription that is awaiting or under review.
func (p *Prescription) Hold(reason string) error {
	if p.status != StatusPending && p.status != StatusUnderReview {
		return domain.NewRuleError("cannot hold prescription %s from status %s", p.id, p.status)
	}
	return p.branch(StatusOnHold, reason)
}

// Resume returns an on-hold prescription to review (or Pending when it
// was never assigned).
func (p *Prescription) Resume() error {
	if p.status != StatusOnHold {
		return domain.NewRuleError("cannot resume prescription %s from status %s", p.id, p.status)
	}
	target := StatusPending
	if p.assignedPharmacyID != nil {
		target = StatusUnderReview
	}
	return p.branch(target, "resumed from hold")
}

// Reject terminally rejects the prescription.
func (p *Prescription) Reject(reason string) error {
	if p.status.IsTerminal() {
		return domain.NewRuleError("cannot reject prescription %s: status %s is terminal", p.id, p.status)
	}
	return p.branch(StatusRejected, reason)
}

// Cancel terminally cancels the prescription.
func (p *Prescription) Cancel(reason string) error {
	if p.status.IsTerminal() {
		return domain.NewRuleError("cannot cancel prescription %s: status %s is terminal", p.id, p.status)
	}
	return p.branch(StatusCancelled, reason)
}

// MarkExpired terminally expires the prescription.
func (p *Prescription) MarkExpired() error {
	if p.status.IsTerminal() {
		return domain.NewRuleError("cannot expire prescription %s: status %s is terminal", p.id, p.status)
	}
	return p.branch(StatusExpired, "validity period elapsed")
}

// RequirePayment parks a reviewed prescription until payment clears.
func (p *Prescription) RequirePayment() error {
	if p.status != StatusUnderReview {
		return domain.NewRuleError("cannot require payment for prescription %s from status %s", p.id, p.status)
	}
	return p.branch(StatusPaymentPending, "payment required")
}

// ConfirmPayment returns a payment-pending prescription to review.
func (p *Prescription) ConfirmPayment() error {
	if p.status != StatusPaymentPending {
		return domain.NewRuleError("cannot confirm payment for prescription %s from status %s", p.id, p.status)
	}
	return p.branch(StatusUnderReview, "payment confirmed")
}

// MarkReadyForPickup flags a dispensed prescription for member collection.
func (p *Prescription) MarkReadyForPickup() error {
	if !p.status.isDispensed() {
		return domain.NewRuleError("cannot mark prescription %s ready for pickup from status %s", p.id, p.status)
	}
	return p.branch(StatusReadyForPickup, "ready for pickup")
}

// branch performs a side-branch transition carrying a free-text reason.
func (p *Prescription) branch(target Status, reason string) error {
	old := p.transition(target)
	p.changes = append(p.changes, StatusChangedEvent{
		ID:        p.id,
		Reason:    reason,
		OldStatus: old,
		NewStatus: target,
		At:        p.updatedAt,
	})
	return nil
}

func (p *Prescription) transition(target Status) (old Status) {
	old = p.status
	p.status = target
	p.updatedAt = time.Now().UTC()
	return old
}
