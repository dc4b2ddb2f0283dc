package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/auth"
	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/audit"
	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
	"github.com/carelink/rx-lifecycle/internal/eventbus"
	"github.com/carelink/rx-lifecycle/internal/notification"
)

// fakeStore keeps snapshots in memory and mirrors the persistence
// layer's contract: events are drained and published only after a
// successful save.
type fakeStore struct {
	mu            sync.Mutex
	items         map[uuid.UUID]prescription.Restored
	pharmacyNames map[int64]string
	bus           *eventbus.Bus
	saveErr       error
	lastFilter    prescription.Filter
}

func newFakeStore(bus *eventbus.Bus) *fakeStore {
	return &fakeStore{
		items:         make(map[uuid.UUID]prescription.Restored),
		pharmacyNames: map[int64]string{2: "Main Street Pharmacy"},
		bus:           bus,
	}
}

func snapshot(p *prescription.Prescription) prescription.Restored {
	return prescription.Restored{
		ID:                 p.ID(),
		MainMemberID:       p.MainMemberID(),
		BeneficiaryID:      p.BeneficiaryID(),
		DoctorID:           p.DoctorID(),
		AssignedPharmacyID: p.AssignedPharmacyID(),
		Status:             p.Status(),
		IssuedAt:           p.IssuedAt(),
		ExpiresAt:          p.ExpiresAt(),
		Notes:              p.Notes(),
		Version:            p.Version(),
		CreatedAt:          p.CreatedAt(),
		UpdatedAt:          p.UpdatedAt(),
	}
}

func (f *fakeStore) Create(ctx context.Context, p *prescription.Prescription, _ []string) error {
	f.mu.Lock()
	f.items[p.ID()] = snapshot(p)
	f.mu.Unlock()
	f.publish(ctx, p)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return prescription.Restore(snap), nil
}

func (f *fakeStore) GetDetail(ctx context.Context, id uuid.UUID) (*prescription.Prescription, string, error) {
	p, err := f.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var name string
	if pid := p.AssignedPharmacyID(); pid != nil {
		name = f.pharmacyNames[*pid]
	}
	return p, name, nil
}

func (f *fakeStore) List(_ context.Context, filter prescription.Filter) ([]*prescription.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []*prescription.Prescription
	for _, snap := range f.items {
		out = append(out, prescription.Restore(snap))
	}
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, p *prescription.Prescription) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.items[p.ID()] = snapshot(p)
	f.mu.Unlock()
	f.publish(ctx, p)
	return nil
}

func (f *fakeStore) publish(ctx context.Context, p *prescription.Prescription) {
	events := p.Committed()
	if f.bus == nil || len(events) == 0 {
		return
	}
	busEvents := make([]eventbus.Event, len(events))
	for i, evt := range events {
		busEvents[i] = evt
	}
	// The persistence layer logs post-commit handler errors rather
	// than returning them; the transition is already durable.
	_ = f.bus.Publish(ctx, busEvents...)
	f.mu.Lock()
	f.items[p.ID()] = snapshot(p)
	f.mu.Unlock()
}

func (f *fakeStore) status(t *testing.T, id uuid.UUID) prescription.Status {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.items[id]
	if !ok {
		t.Fatalf("prescription %s not stored", id)
	}
	return snap.Status
}

type fakeTrail struct {
	mu      sync.Mutex
	changes []prescription.StatusChange
	entries []audit.Entry
}

func (f *fakeTrail) AppendWithAudit(_ context.Context, change prescription.StatusChange, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeTrail) ListByPrescription(_ context.Context, id uuid.UUID) ([]prescription.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []prescription.StatusChange
	for _, c := range f.changes {
		if c.PrescriptionID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudits) Append(_ context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	trail    *fakeTrail
	audits   *fakeAudits
	notifier *fakeNotifier
}

func newFixture() *fixture {
	bus := eventbus.New(zap.NewNop())
	store := newFakeStore(bus)
	trail := &fakeTrail{}
	audits := &fakeAudits{}
	notifier := &fakeNotifier{}
	NewHandlers(store, trail, audits, notifier, nil, zap.NewNop()).Register(bus)
	return &fixture{
		svc:      NewService(store, trail, nil, zap.NewNop()),
		store:    store,
		trail:    trail,
		audits:   audits,
		notifier: notifier,
	}
}

func adminCtx() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{UserID: 1, Role: auth.RoleSuperAdmin})
}

func pharmacistCtx(userID, pharmacyID int64) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{
		UserID: userID, Role: auth.RolePharmacist, PharmacyID: &pharmacyID,
	})
}

func memberCtx(userID int64) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{UserID: userID, Role: auth.RoleMember})
}

func createPending(t *testing.T, fx *fixture, memberID int64) *prescription.Prescription {
	t.Helper()
	issued := time.Now().UTC()
	p, err := fx.svc.Create(adminCtx(), CreateParams{
		MainMemberID:  memberID,
		BeneficiaryID: memberID,
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(30 * 24 * time.Hour),
		Notes:         "daily dose",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p
}

func TestLifecycleHappyPath(t *testing.T) {
	fx := newFixture()
	ctx := adminCtx()

	p := createPending(t, fx, 100)

	if _, err := fx.svc.AssignToPharmacy(ctx, p.ID(), 2); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if _, err := fx.svc.CompleteDispense(ctx, p.ID(), false, "all items"); err != nil {
		t.Fatalf("dispense failed: %v", err)
	}
	if _, err := fx.svc.MarkDelivered(ctx, p.ID()); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	if got := fx.store.status(t, p.ID()); got != prescription.StatusDelivered {
		t.Errorf("final status = %s, want %s", got, prescription.StatusDelivered)
	}

	history, err := fx.svc.History(ctx, p.ID())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d history rows, want 3", len(history))
	}
	wantTrail := []struct{ old, new prescription.Status }{
		{prescription.StatusPending, prescription.StatusUnderReview},
		{prescription.StatusUnderReview, prescription.StatusFullyDispensed},
		{prescription.StatusFullyDispensed, prescription.StatusDelivered},
	}
	for i, want := range wantTrail {
		if history[i].OldStatus != want.old || history[i].NewStatus != want.new {
			t.Errorf("history[%d] = %s -> %s, want %s -> %s",
				i, history[i].OldStatus, history[i].NewStatus, want.old, want.new)
		}
		if history[i].ActorID != 1 {
			t.Errorf("history[%d] actor = %d, want 1", i, history[i].ActorID)
		}
	}

	// One creation audit row plus one per trail row.
	if len(fx.audits.entries) != 1 {
		t.Errorf("got %d standalone audit rows, want 1 (creation)", len(fx.audits.entries))
	}
	if len(fx.trail.entries) != 3 {
		t.Errorf("got %d trail audit rows, want 3", len(fx.trail.entries))
	}
	if len(fx.notifier.sent) != 3 {
		t.Errorf("got %d notifications, want 3", len(fx.notifier.sent))
	}
}

func TestDispenseForbiddenForOtherPharmacy(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)
	if _, err := fx.svc.AssignToPharmacy(adminCtx(), p.ID(), 2); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	trailBefore := len(fx.trail.changes)

	_, err := fx.svc.CompleteDispense(pharmacistCtx(5, 9), p.ID(), false, "")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if got := fx.store.status(t, p.ID()); got != prescription.StatusUnderReview {
		t.Errorf("status = %s, want unchanged %s", got, prescription.StatusUnderReview)
	}
	if len(fx.trail.changes) != trailBefore {
		t.Errorf("forbidden transition wrote %d new trail rows", len(fx.trail.changes)-trailBefore)
	}
}

func TestAssignForbiddenOutsideOwnPharmacy(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)

	if _, err := fx.svc.AssignToPharmacy(pharmacistCtx(5, 9), p.ID(), 2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	// A pharmacist may route work to their own pharmacy.
	if _, err := fx.svc.AssignToPharmacy(pharmacistCtx(5, 2), p.ID(), 2); err != nil {
		t.Fatalf("assign to own pharmacy failed: %v", err)
	}
}

func TestTransitionUnknownPrescription(t *testing.T) {
	fx := newFixture()
	if _, err := fx.svc.MarkDelivered(adminCtx(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveConflictSurfaces(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)
	fx.store.saveErr = domain.ErrVersionConflict

	_, err := fx.svc.AssignToPharmacy(adminCtx(), p.ID(), 2)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if got := fx.store.status(t, p.ID()); got != prescription.StatusPending {
		t.Errorf("status = %s, want unchanged %s", got, prescription.StatusPending)
	}
}

func TestInvalidTransitionIsRuleError(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)

	_, err := fx.svc.MarkDelivered(adminCtx(), p.ID())
	if !domain.IsRule(err) {
		t.Fatalf("err = %v, want rule error", err)
	}
	if got := fx.store.status(t, p.ID()); got != prescription.StatusPending {
		t.Errorf("status = %s, want unchanged %s", got, prescription.StatusPending)
	}
}

func TestCancelByOwningMember(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)

	if _, err := fx.svc.Cancel(memberCtx(200), p.ID(), "not mine"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger cancel err = %v, want ErrForbidden", err)
	}
	if _, err := fx.svc.Cancel(memberCtx(100), p.ID(), "no longer needed"); err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if got := fx.store.status(t, p.ID()); got != prescription.StatusCancelled {
		t.Errorf("status = %s, want %s", got, prescription.StatusCancelled)
	}
}

func TestListForcesActorScope(t *testing.T) {
	fx := newFixture()
	createPending(t, fx, 100)

	if _, err := fx.svc.List(memberCtx(100), prescription.Filter{}); err != nil {
		t.Fatalf("member list failed: %v", err)
	}
	if fx.store.lastFilter.MainMemberID == nil || *fx.store.lastFilter.MainMemberID != 100 {
		t.Errorf("member filter = %+v, want main_member_id forced to 100", fx.store.lastFilter)
	}

	if _, err := fx.svc.List(pharmacistCtx(5, 2), prescription.Filter{}); err != nil {
		t.Fatalf("pharmacist list failed: %v", err)
	}
	if fx.store.lastFilter.PharmacyID == nil || *fx.store.lastFilter.PharmacyID != 2 {
		t.Errorf("pharmacist filter = %+v, want pharmacy_id forced to 2", fx.store.lastFilter)
	}

	unattached := auth.WithActor(context.Background(), auth.Actor{UserID: 6, Role: auth.RolePharmacist})
	if _, err := fx.svc.List(unattached, prescription.Filter{}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("unattached pharmacist list err = %v, want ErrForbidden", err)
	}
}

func TestExpireRunsUnscoped(t *testing.T) {
	fx := newFixture()
	p := createPending(t, fx, 100)

	// Background expiry carries no authenticated actor.
	if _, err := fx.svc.Expire(context.Background(), p.ID()); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if got := fx.store.status(t, p.ID()); got != prescription.StatusExpired {
		t.Errorf("status = %s, want %s", got, prescription.StatusExpired)
	}

	history, err := fx.trail.ListByPrescription(context.Background(), p.ID())
	if err != nil {
		t.Fatalf("history read failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d history rows, want 1", len(history))
	}
	if history[0].ActorID != auth.SystemUserID {
		t.Errorf("expiry actor = %d, want system sentinel %d", history[0].ActorID, auth.SystemUserID)
	}
}
