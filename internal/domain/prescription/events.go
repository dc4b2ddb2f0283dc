package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds, used as subscription keys on the in-process bus.
const (
	KindCreated            = "PrescriptionCreated"
	KindAssignedToPharmacy = "PrescriptionAssignedToPharmacy"
	KindDispensed          = "PrescriptionDispensed"
	KindDelivered          = "PrescriptionDelivered"
	KindStatusChanged      = "PrescriptionStatusChanged"
)

// Event is a transient record of a state transition. Events are appended
// by transition methods, collected by the persistence layer, and published
// once after the transaction commits.
type Event interface {
	EventKind() string
	PrescriptionID() uuid.UUID
	OccurredAt() time.Time
}

// CreatedEvent is raised when a prescription enters the lifecycle.
type CreatedEvent struct {
	ID     uuid.UUID
	Status Status
	At     time.Time
}

func (e CreatedEvent) EventKind() string         { return KindCreated }
func (e CreatedEvent) PrescriptionID() uuid.UUID { return e.ID }
func (e CreatedEvent) OccurredAt() time.Time     { return e.At }

// AssignedToPharmacyEvent is raised by AssignToPharmacy.
type AssignedToPharmacyEvent struct {
	ID         uuid.UUID
	PharmacyID int64
	OldStatus  Status
	NewStatus  Status
	At         time.Time
}

func (e AssignedToPharmacyEvent) EventKind() string         { return KindAssignedToPharmacy }
func (e AssignedToPharmacyEvent) PrescriptionID() uuid.UUID { return e.ID }
func (e AssignedToPharmacyEvent) OccurredAt() time.Time     { return e.At }

// DispensedEvent is raised by CompleteDispense.
type DispensedEvent struct {
	ID        uuid.UUID
	IsPartial bool
	Note      string
	OldStatus Status
	NewStatus Status
	At        time.Time
}

func (e DispensedEvent) EventKind() string         { return KindDispensed }
func (e DispensedEvent) PrescriptionID() uuid.UUID { return e.ID }
func (e DispensedEvent) OccurredAt() time.Time     { return e.At }

// DeliveredEvent is raised by MarkDelivered.
type DeliveredEvent struct {
	ID        uuid.UUID
	OldStatus Status
	NewStatus Status
	At        time.Time
}

func (e DeliveredEvent) EventKind() string         { return KindDelivered }
func (e DeliveredEvent) PrescriptionID() uuid.UUID { return e.ID }
func (e DeliveredEvent) OccurredAt() time.Time     { return e.At }

// StatusChangedEvent covers the side-branch transitions (hold, reject,
// cancel, expire, payment, ready-for-pickup) with a free-text reason.
type StatusChangedEvent struct {
	ID        uuid.UUID
	Reason    string
	OldStatus Status
	NewStatus Status
	At        time.Time
}

func (e StatusChangedEvent) EventKind() string         { return KindStatusChanged }
func (e StatusChangedEvent) PrescriptionID() uuid.UUID { return e.ID }
func (e StatusChangedEvent) OccurredAt() time.Time     { return e.At }
