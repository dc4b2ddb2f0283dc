// Package auth carries the acting user through the request and enforces
// pharmacy scoping. The actor is resolved once by middleware and passed
// explicitly via context; no framework-ambient singleton.
package auth

import (
	"context"

	"github.com/carelink/rx-lifecycle/internal/domain"
)

// Role is the coarse-grained role of the acting user.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSystemAdmin Role = "system_admin"
	RolePharmacist  Role = "pharmacist"
	RoleDoctor      Role = "doctor"
	RoleMember      Role = "member"
)

// SystemUserID is the sentinel actor id recorded when a write happens
// without an authenticated user (scheduled expiry, system fixes).
const SystemUserID int64 = 0

// Actor identifies the acting user and, for pharmacy-bound roles, the
// pharmacy they are scoped to. A nil PharmacyID on a super admin means
// unscoped access; on any other role it means no pharmacy association.
type Actor struct {
	UserID     int64
	Role       Role
	PharmacyID *int64
}

// System is the unauthenticated system actor.
var System = Actor{UserID: SystemUserID, Role: RoleSuperAdmin}

// Unscoped reports whether the actor may act across all pharmacies.
func (a Actor) Unscoped() bool { return a.Role == RoleSuperAdmin }

// CanAssignToPharmacy checks that the actor may assign prescriptions to
// the given pharmacy: super admins may target any pharmacy, scoped users
// only their own.
func (a Actor) CanAssignToPharmacy(pharmacyID int64) error {
	if a.Unscoped() {
		return nil
	}
	if a.PharmacyID == nil || *a.PharmacyID != pharmacyID {
		return domain.ErrForbidden
	}
	return nil
}

// CanActOnPharmacy checks that the actor may act on a prescription
// assigned to the given pharmacy. A prescription with no assignment is
// only actionable by an unscoped actor.
func (a Actor) CanActOnPharmacy(assignedPharmacyID *int64) error {
	if a.Unscoped() {
		return nil
	}
	if assignedPharmacyID == nil || a.PharmacyID == nil || *a.PharmacyID != *assignedPharmacyID {
		return domain.ErrForbidden
	}
	return nil
}

type contextKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext extracts the actor, falling back to the system sentinel.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(contextKey{}).(Actor); ok {
		return a
	}
	return System
}
