package prescription

import (
	"time"

	"github.com/google/uuid"
)

// StatusChange is one append-only status-history entry. Rows are written
// exclusively by the lifecycle event handlers and never updated or deleted.
type StatusChange struct {
	ID             int64     `json:"id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	OldStatus      Status    `json:"old_status"`
	NewStatus      Status    `json:"new_status"`
	ActorID        int64     `json:"actor_id"`
	Reason         string    `json:"reason"`
	At             time.Time `json:"at"`
}
