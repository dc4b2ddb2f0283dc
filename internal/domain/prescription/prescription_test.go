package prescription

import (
	"testing"
	"time"

	"github.com/carelink/rx-lifecycle/internal/domain"
)

func newPending(t *testing.T) *Prescription {
	t.Helper()
	issued := time.Now().UTC()
	p, err := New(10, 20, nil, issued, issued.Add(30*24*time.Hour), "take daily")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.Committed() // drop the creation event, tests below assert per-transition
	return p
}

func TestNewValidatesExpiry(t *testing.T) {
	issued := time.Now().UTC()
	_, err := New(1, 2, nil, issued, issued.Add(-time.Hour), "")
	if !domain.IsRule(err) {
		t.Fatalf("expected rule error for expiry before issue, got %v", err)
	}
}

func TestNewStartsPendingWithCreatedEvent(t *testing.T) {
	issued := time.Now().UTC()
	p, err := New(1, 2, nil, issued, issued.Add(time.Hour), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Status() != StatusPending {
		t.Errorf("status = %s, want %s", p.Status(), StatusPending)
	}
	changes := p.Changes()
	if len(changes) != 1 {
		t.Fatalf("got %d events, want 1", len(changes))
	}
	if changes[0].EventKind() != KindCreated {
		t.Errorf("event kind = %s, want %s", changes[0].EventKind(), KindCreated)
	}
}

func TestAssignToPharmacy(t *testing.T) {
	p := newPending(t)

	if err := p.AssignToPharmacy(5); err != nil {
		t.Fatalf("AssignToPharmacy failed: %v", err)
	}
	if p.Status() != StatusUnderReview {
		t.Errorf("status = %s, want %s", p.Status(), StatusUnderReview)
	}
	if p.AssignedPharmacyID() == nil || *p.AssignedPharmacyID() != 5 {
		t.Errorf("assigned pharmacy = %v, want 5", p.AssignedPharmacyID())
	}

	changes := p.Changes()
	if len(changes) != 1 {
		t.Fatalf("got %d events, want 1", len(changes))
	}
	evt, ok := changes[0].(AssignedToPharmacyEvent)
	if !ok {
		t.Fatalf("event type = %T, want AssignedToPharmacyEvent", changes[0])
	}
	if evt.OldStatus != StatusPending || evt.NewStatus != StatusUnderReview {
		t.Errorf("event statuses = %s -> %s, want Pending -> UnderReview", evt.OldStatus, evt.NewStatus)
	}
	if evt.PharmacyID != 5 {
		t.Errorf("event pharmacy = %d, want 5", evt.PharmacyID)
	}
}

func TestCompleteDispense(t *testing.T) {
	tests := []struct {
		name      string
		isPartial bool
		want      Status
	}{
		{"partial", true, StatusPartiallyDispensed},
		{"full", false, StatusFullyDispensed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPending(t)
			if err := p.AssignToPharmacy(5); err != nil {
				t.Fatalf("assign failed: %v", err)
			}
			p.Committed()

			if err := p.CompleteDispense(tt.isPartial, "ok"); err != nil {
				t.Fatalf("CompleteDispense failed: %v", err)
			}
			if p.Status() != tt.want {
				t.Errorf("status = %s, want %s", p.Status(), tt.want)
			}

			changes := p.Changes()
			if len(changes) != 1 {
				t.Fatalf("got %d events, want 1", len(changes))
			}
			evt := changes[0].(DispensedEvent)
			if evt.IsPartial != tt.isPartial {
				t.Errorf("event partial = %t, want %t", evt.IsPartial, tt.isPartial)
			}
			if evt.OldStatus != StatusUnderReview || evt.NewStatus != tt.want {
				t.Errorf("event statuses = %s -> %s", evt.OldStatus, evt.NewStatus)
			}
		})
	}
}

func TestCompleteDispenseRequiresAssignment(t *testing.T) {
	p := newPending(t)
	if err := p.CompleteDispense(false, ""); !domain.IsRule(err) {
		t.Errorf("expected rule error dispensing unassigned prescription, got %v", err)
	}
	if p.Status() != StatusPending {
		t.Errorf("status changed to %s on failed dispense", p.Status())
	}
}

func TestMarkDeliveredOnlyFromDispensed(t *testing.T) {
	p := newPending(t)
	if err := p.MarkDelivered(); !domain.IsRule(err) {
		t.Errorf("expected rule error delivering from Pending, got %v", err)
	}

	if err := p.AssignToPharmacy(5); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := p.MarkDelivered(); !domain.IsRule(err) {
		t.Errorf("expected rule error delivering from UnderReview, got %v", err)
	}

	if err := p.CompleteDispense(false, ""); err != nil {
		t.Fatalf("dispense failed: %v", err)
	}
	if err := p.MarkDelivered(); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	if p.Status() != StatusDelivered {
		t.Errorf("status = %s, want %s", p.Status(), StatusDelivered)
	}
}

func TestMarkDeliveredFromReadyForPickup(t *testing.T) {
	p := newPending(t)
	if err := p.AssignToPharmacy(5); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := p.CompleteDispense(true, ""); err != nil {
		t.Fatalf("dispense failed: %v", err)
	}
	if err := p.MarkReadyForPickup(); err != nil {
		t.Fatalf("ready failed: %v", err)
	}
	if err := p.MarkDelivered(); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
}

func TestTerminalStatusesRejectAllTransitions(t *testing.T) {
	terminalSetups := map[Status]func(p *Prescription) error{
		StatusDelivered: func(p *Prescription) error {
			if err := p.AssignToPharmacy(1); err != nil {
				return err
			}
			if err := p.CompleteDispense(false, ""); err != nil {
				return err
			}
			return p.MarkDelivered()
		},
		StatusRejected:  func(p *Prescription) error { return p.Reject("bad script") },
		StatusCancelled: func(p *Prescription) error { return p.Cancel("changed mind") },
		StatusExpired:   func(p *Prescription) error { return p.MarkExpired() },
	}

	for status, setup := range terminalSetups {
		t.Run(string(status), func(t *testing.T) {
			p := newPending(t)
			if err := setup(p); err != nil {
				t.Fatalf("setup failed: %v", err)
			}
			if p.Status() != status {
				t.Fatalf("setup produced %s, want %s", p.Status(), status)
			}
			if !p.Status().IsTerminal() {
				t.Fatalf("%s not reported terminal", status)
			}
			p.Committed()

			transitions := map[string]func() error{
				"assign":   func() error { return p.AssignToPharmacy(9) },
				"dispense": func() error { return p.CompleteDispense(false, "") },
				"deliver":  func() error { return p.MarkDelivered() },
				"hold":     func() error { return p.Hold("x") },
				"reject":   func() error { return p.Reject("x") },
				"cancel":   func() error { return p.Cancel("x") },
				"expire":   func() error { return p.MarkExpired() },
			}
			for name, fn := range transitions {
				if err := fn(); !domain.IsRule(err) {
					t.Errorf("%s on %s: expected rule error, got %v", name, status, err)
				}
				if p.Status() != status {
					t.Errorf("%s on %s mutated status to %s", name, status, p.Status())
				}
				if len(p.Changes()) != 0 {
					t.Errorf("%s on %s raised events", name, status)
				}
			}
		})
	}
}

func TestHoldAndResume(t *testing.T) {
	p := newPending(t)
	if err := p.Hold("supplier issue"); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	if p.Status() != StatusOnHold {
		t.Errorf("status = %s, want %s", p.Status(), StatusOnHold)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if p.Status() != StatusPending {
		t.Errorf("resume of unassigned prescription = %s, want %s", p.Status(), StatusPending)
	}

	// Assigned prescriptions resume into review.
	if err := p.AssignToPharmacy(3); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := p.Hold("stock check"); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if p.Status() != StatusUnderReview {
		t.Errorf("resume of assigned prescription = %s, want %s", p.Status(), StatusUnderReview)
	}
}

func TestPaymentRoundTrip(t *testing.T) {
	p := newPending(t)
	if err := p.AssignToPharmacy(3); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := p.RequirePayment(); err != nil {
		t.Fatalf("RequirePayment failed: %v", err)
	}
	if p.Status() != StatusPaymentPending {
		t.Errorf("status = %s, want %s", p.Status(), StatusPaymentPending)
	}
	if err := p.CompleteDispense(false, ""); !domain.IsRule(err) {
		t.Errorf("expected rule error dispensing while payment pending, got %v", err)
	}
	if err := p.ConfirmPayment(); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if p.Status() != StatusUnderReview {
		t.Errorf("status = %s, want %s", p.Status(), StatusUnderReview)
	}
}

func TestCommittedDrainsEventsOnce(t *testing.T) {
	p := newPending(t)
	if err := p.AssignToPharmacy(5); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	v := p.Version()
	events := p.Committed()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if p.Version() != v+1 {
		t.Errorf("version = %d, want %d", p.Version(), v+1)
	}
	if len(p.Changes()) != 0 {
		t.Errorf("changes not drained")
	}
	if again := p.Committed(); len(again) != 0 {
		t.Errorf("second drain returned %d events, want 0", len(again))
	}
}

func TestEveryTransitionRaisesExactlyOneEvent(t *testing.T) {
	p := newPending(t)

	steps := []func() error{
		func() error { return p.AssignToPharmacy(5) },
		func() error { return p.CompleteDispense(false, "ok") },
		func() error { return p.MarkDelivered() },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if n := len(p.Changes()); n != 1 {
			t.Fatalf("step %d raised %d events, want 1", i, n)
		}
		p.Committed()
	}
}
