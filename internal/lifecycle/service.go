// Package lifecycle implements the prescription transition commands and
// the status-change event handlers. Commands resolve the acting user's
// pharmacy scope, load the aggregate, run the transition, and save; the
// persistence layer publishes the resulting events after commit.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/auth"
	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
	"github.com/carelink/rx-lifecycle/internal/observability/metrics"
)

// Store is the persistence collaborator for prescription aggregates.
// Save commits the transition and then dispatches collected events.
type Store interface {
	Create(ctx context.Context, p *prescription.Prescription, fileRefs []string) error
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	List(ctx context.Context, f prescription.Filter) ([]*prescription.Prescription, error)
	Save(ctx context.Context, p *prescription.Prescription) error
}

// HistoryReader reads the status trail for query endpoints.
type HistoryReader interface {
	ListByPrescription(ctx context.Context, id uuid.UUID) ([]prescription.StatusChange, error)
}

// Service executes lifecycle commands.
type Service struct {
	store   Store
	history HistoryReader
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a lifecycle service. metrics may be nil in tests.
func NewService(store Store, history HistoryReader, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, history: history, logger: logger, metrics: m}
}

// CreateParams describes a new prescription command. Files are storage
// references attached by the member upload flow.
type CreateParams struct {
	MainMemberID  int64
	BeneficiaryID int64
	DoctorID      *int64
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Notes         string
	FileRefs      []string
}

// Create registers a new prescription in the Pending status.
func (s *Service) Create(ctx context.Context, params CreateParams) (*prescription.Prescription, error) {
	p, err := prescription.New(params.MainMemberID, params.BeneficiaryID, params.DoctorID,
		params.IssuedAt, params.ExpiresAt, params.Notes)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.store.Create(ctx, p, params.FileRefs); err != nil {
		return nil, s.fail(err)
	}

	s.count("create")
	s.logger.Info("prescription created",
		zap.String("id", p.ID().String()),
		zap.Int64("main_member_id", p.MainMemberID()))
	return p, nil
}

// AssignToPharmacy routes a prescription to a pharmacy. Scoped actors
// may only assign to their own pharmacy.
func (s *Service) AssignToPharmacy(ctx context.Context, id uuid.UUID, pharmacyID int64) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	if err := actor.CanAssignToPharmacy(pharmacyID); err != nil {
		return nil, s.fail(err)
	}

	return s.transition(ctx, id, "assign", func(p *prescription.Prescription) error {
		return p.AssignToPharmacy(pharmacyID)
	})
}

// CompleteDispense records a partial or full dispense. Only the assigned
// pharmacy (or an unscoped admin) may dispense.
func (s *Service) CompleteDispense(ctx context.Context, id uuid.UUID, isPartial bool, note string) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "dispense", func(p *prescription.Prescription) error {
		if err := actor.CanActOnPharmacy(p.AssignedPharmacyID()); err != nil {
			return err
		}
		return p.CompleteDispense(isPartial, note)
	})
}

// MarkDelivered records delivery to the member. Only the assigned
// pharmacy (or an unscoped admin) may deliver.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "deliver", func(p *prescription.Prescription) error {
		if err := actor.CanActOnPharmacy(p.AssignedPharmacyID()); err != nil {
			return err
		}
		return p.MarkDelivered()
	})
}

// Hold pauses a prescription.
func (s *Service) Hold(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "hold", func(p *prescription.Prescription) error {
		if err := canManage(actor, p); err != nil {
			return err
		}
		return p.Hold(reason)
	})
}

// Resume returns an on-hold prescription to review.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "resume", func(p *prescription.Prescription) error {
		if err := canManage(actor, p); err != nil {
			return err
		}
		return p.Resume()
	})
}

// Reject terminally rejects a prescription.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "reject", func(p *prescription.Prescription) error {
		if err := canManage(actor, p); err != nil {
			return err
		}
		return p.Reject(reason)
	})
}

// Cancel terminally cancels a prescription. The owning main member may
// cancel their own.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "cancel", func(p *prescription.Prescription) error {
		if actor.Role == auth.RoleMember && actor.UserID == p.MainMemberID() {
			return p.Cancel(reason)
		}
		if err := canManage(actor, p); err != nil {
			return err
		}
		return p.Cancel(reason)
	})
}

// Expire terminally expires a prescription. Run by the system actor.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	return s.transition(ctx, id, "expire", func(p *prescription.Prescription) error {
		return p.MarkExpired()
	})
}

// RequirePayment parks a reviewed prescription until payment clears.
func (s *Service) RequirePayment(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "require_payment", func(p *prescription.Prescription) error {
		if err := actor.CanActOnPharmacy(p.AssignedPharmacyID()); err != nil {
			return err
		}
		return p.RequirePayment()
	})
}

// ConfirmPayment returns a payment-pending prescription to review.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "confirm_payment", func(p *prescription.Prescription) error {
		if err := actor.CanActOnPharmacy(p.AssignedPharmacyID()); err != nil {
			return err
		}
		return p.ConfirmPayment()
	})
}

// MarkReadyForPickup flags a dispensed prescription for collection.
func (s *Service) MarkReadyForPickup(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	return s.transition(ctx, id, "ready_for_pickup", func(p *prescription.Prescription) error {
		if err := actor.CanActOnPharmacy(p.AssignedPharmacyID()); err != nil {
			return err
		}
		return p.MarkReadyForPickup()
	})
}

// Get loads one prescription.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	return s.store.Get(ctx, id)
}

// List returns prescriptions visible to the actor: pharmacy-scoped users
// see their own pharmacy's queue, members their own household, unscoped
// admins everything.
func (s *Service) List(ctx context.Context, f prescription.Filter) ([]*prescription.Prescription, error) {
	actor := auth.FromContext(ctx)
	switch {
	case actor.Unscoped():
	case actor.Role == auth.RoleMember:
		memberID := actor.UserID
		f.MainMemberID = &memberID
	default:
		if actor.PharmacyID == nil {
			return nil, domain.ErrForbidden
		}
		f.PharmacyID = actor.PharmacyID
	}
	return s.store.List(ctx, f)
}

// History returns the ordered status trail.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]prescription.StatusChange, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByPrescription(ctx, id)
}

// transition is the shared load → mutate → save sequence. NotFound
// surfaces before any guard runs against aggregate state.
func (s *Service) transition(ctx context.Context, id uuid.UUID, kind string, mutate func(*prescription.Prescription) error) (*prescription.Prescription, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := mutate(p); err != nil {
		return nil, s.fail(err)
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, s.fail(err)
	}

	s.count(kind)
	s.logger.Info("prescription transitioned",
		zap.String("id", id.String()),
		zap.String("kind", kind),
		zap.String("status", string(p.Status())))
	return p, nil
}

// canManage allows unscoped admins anywhere and scoped users on their
// own pharmacy's prescriptions.
func canManage(actor auth.Actor, p *prescription.Prescription) error {
	if actor.Unscoped() {
		return nil
	}
	return actor.CanActOnPharmacy(p.AssignedPharmacyID())
}

func (s *Service) count(kind string) {
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(kind).Inc()
	}
}

func (s *Service) fail(err error) error {
	if s.metrics != nil {
		s.metrics.TransitionFailures.WithLabelValues(failureReason(err)).Inc()
		if errors.Is(err, domain.ErrVersionConflict) {
			s.metrics.VersionConflictsSeen.Inc()
		}
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	case domain.IsRule(err):
		return "rule"
	default:
		return "error"
	}
}
