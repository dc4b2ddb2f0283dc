package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/carelink/rx-lifecycle/internal/domain"
)

func ptr(v int64) *int64 { return &v }

func TestCanAssignToPharmacy(t *testing.T) {
	tests := []struct {
		name     string
		actor    Actor
		pharmacy int64
		wantErr  bool
	}{
		{"super admin any pharmacy", Actor{UserID: 1, Role: RoleSuperAdmin}, 7, false},
		{"pharmacist own pharmacy", Actor{UserID: 2, Role: RolePharmacist, PharmacyID: ptr(7)}, 7, false},
		{"pharmacist other pharmacy", Actor{UserID: 2, Role: RolePharmacist, PharmacyID: ptr(7)}, 9, true},
		{"pharmacist without pharmacy", Actor{UserID: 2, Role: RolePharmacist}, 7, true},
		{"system admin is scoped", Actor{UserID: 3, Role: RoleSystemAdmin}, 7, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actor.CanAssignToPharmacy(tt.pharmacy)
			if tt.wantErr && !errors.Is(err, domain.ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected err = %v", err)
			}
		})
	}
}

func TestCanActOnPharmacy(t *testing.T) {
	tests := []struct {
		name     string
		actor    Actor
		assigned *int64
		wantErr  bool
	}{
		{"super admin unassigned", Actor{Role: RoleSuperAdmin}, nil, false},
		{"super admin assigned", Actor{Role: RoleSuperAdmin}, ptr(7), false},
		{"pharmacist matching", Actor{Role: RolePharmacist, PharmacyID: ptr(7)}, ptr(7), false},
		{"pharmacist mismatched", Actor{Role: RolePharmacist, PharmacyID: ptr(9)}, ptr(7), true},
		{"pharmacist on unassigned", Actor{Role: RolePharmacist, PharmacyID: ptr(7)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actor.CanActOnPharmacy(tt.assigned)
			if tt.wantErr && !errors.Is(err, domain.ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected err = %v", err)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	a := Actor{UserID: 42, Role: RoleDoctor}
	ctx := WithActor(context.Background(), a)
	if got := FromContext(ctx); got != a {
		t.Errorf("FromContext = %+v, want %+v", got, a)
	}
}

func TestFromContextFallsBackToSystem(t *testing.T) {
	got := FromContext(context.Background())
	if got != System {
		t.Errorf("FromContext = %+v, want system actor", got)
	}
	if got.UserID != SystemUserID || !got.Unscoped() {
		t.Errorf("system actor = %+v, want unscoped user %d", got, SystemUserID)
	}
}
