package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/auth"
	"github.com/carelink/rx-lifecycle/internal/domain/audit"
	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
	"github.com/carelink/rx-lifecycle/internal/eventbus"
	"github.com/carelink/rx-lifecycle/internal/notification"
	"github.com/carelink/rx-lifecycle/internal/observability/metrics"
)

// DetailReader re-loads a prescription with the pharmacy name the
// notification text needs.
type DetailReader interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*prescription.Prescription, string, error)
}

// TrailWriter appends one status-history row and one audit row in a
// single transaction.
type TrailWriter interface {
	AppendWithAudit(ctx context.Context, change prescription.StatusChange, entry audit.Entry) error
}

// AuditWriter appends a standalone audit row.
type AuditWriter interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// Handlers consume lifecycle events to produce the durable trail and
// the best-effort member notification. One handler per event kind.
type Handlers struct {
	reader   DetailReader
	trail    TrailWriter
	audits   AuditWriter
	notifier notification.Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewHandlers creates the handler set. metrics may be nil in tests.
func NewHandlers(reader DetailReader, trail TrailWriter, audits AuditWriter, notifier notification.Notifier, m *metrics.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Handlers{
		reader:   reader,
		trail:    trail,
		audits:   audits,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

// Register subscribes every handler on the bus.
func (h *Handlers) Register(bus *eventbus.Bus) {
	bus.Subscribe(prescription.KindCreated, h.handleCreated)
	bus.Subscribe(prescription.KindAssignedToPharmacy, h.handleAssigned)
	bus.Subscribe(prescription.KindDispensed, h.handleDispensed)
	bus.Subscribe(prescription.KindDelivered, h.handleDelivered)
	bus.Subscribe(prescription.KindStatusChanged, h.handleStatusChanged)
}

func (h *Handlers) handleCreated(ctx context.Context, raw eventbus.Event) error {
	evt, ok := raw.(prescription.CreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", raw)
	}

	entry := audit.Entry{
		Action:         audit.ActionPrescriptionCreated,
		Details:        fmt.Sprintf("Prescription created with status %s", evt.Status),
		ActorID:        auth.FromContext(ctx).UserID,
		PrescriptionID: &evt.ID,
		At:             evt.At,
	}
	if err := h.audits.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	h.countAudit()
	return nil
}

func (h *Handlers) handleAssigned(ctx context.Context, raw eventbus.Event) error {
	evt, ok := raw.(prescription.AssignedToPharmacyEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", raw)
	}
	defer h.observe(time.Now())

	p, pharmacyName, err := h.reader.GetDetail(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("reload prescription %s: %w", evt.ID, err)
	}

	reason := fmt.Sprintf("Assigned to pharmacy %d", evt.PharmacyID)
	if err := h.appendTrail(ctx, evt.ID, evt.OldStatus, evt.NewStatus, reason, audit.Entry{
		Action:         audit.ActionPrescriptionAssigned,
		Details:        fmt.Sprintf("Prescription assigned to pharmacy %d (%s)", evt.PharmacyID, pharmacyName),
		PrescriptionID: &evt.ID,
		PharmacyID:     &evt.PharmacyID,
		At:             evt.At,
	}); err != nil {
		return err
	}

	h.notify(ctx, notification.Notification{
		UserID:  p.MainMemberID(),
		Type:    notification.TypePrescriptionAssigned,
		Subject: "Prescription assigned to a pharmacy",
		Message: fmt.Sprintf("Your prescription has been assigned to %s and is under review.", orUnknown(pharmacyName)),
		Channel: notification.ChannelEmail,
	})
	return nil
}

func (h *Handlers) handleDispensed(ctx context.Context, raw eventbus.Event) error {
	evt, ok := raw.(prescription.DispensedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", raw)
	}
	defer h.observe(time.Now())

	p, pharmacyName, err := h.reader.GetDetail(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("reload prescription %s: %w", evt.ID, err)
	}

	reason := "Full dispense"
	notifType := notification.TypePrescriptionDispensed
	if evt.IsPartial {
		reason = "Partial dispense"
		notifType = notification.TypePrescriptionPartiallyDispensed
	}
	if evt.Note != "" {
		reason = reason + ": " + evt.Note
	}

	if err := h.appendTrail(ctx, evt.ID, evt.OldStatus, evt.NewStatus, reason, audit.Entry{
		Action:         audit.ActionPrescriptionDispensed,
		Details:        fmt.Sprintf("Prescription dispensed (partial=%t) by %s", evt.IsPartial, orUnknown(pharmacyName)),
		PrescriptionID: &evt.ID,
		PharmacyID:     p.AssignedPharmacyID(),
		At:             evt.At,
	}); err != nil {
		return err
	}

	h.notify(ctx, notification.Notification{
		UserID:  p.MainMemberID(),
		Type:    notifType,
		Subject: "Prescription dispensed",
		Message: fmt.Sprintf("Your prescription has been dispensed by %s.", orUnknown(pharmacyName)),
		Channel: notification.ChannelEmail,
	})
	return nil
}

func (h *Handlers) handleDelivered(ctx context.Context, raw eventbus.Event) error {
	evt, ok := raw.(prescription.DeliveredEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", raw)
	}
	defer h.observe(time.Now())

	p, pharmacyName, err := h.reader.GetDetail(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("reload prescription %s: %w", evt.ID, err)
	}

	if err := h.appendTrail(ctx, evt.ID, evt.OldStatus, evt.NewStatus, "Delivered", audit.Entry{
		Action:         audit.ActionPrescriptionDelivered,
		Details:        fmt.Sprintf("Prescription delivered by %s", orUnknown(pharmacyName)),
		PrescriptionID: &evt.ID,
		PharmacyID:     p.AssignedPharmacyID(),
		At:             evt.At,
	}); err != nil {
		return err
	}

	h.notify(ctx, notification.Notification{
		UserID:  p.MainMemberID(),
		Type:    notification.TypePrescriptionDelivered,
		Subject: "Prescription delivered",
		Message: "Your prescription has been delivered.",
		Channel: notification.ChannelEmail,
	})
	return nil
}

func (h *Handlers) handleStatusChanged(ctx context.Context, raw eventbus.Event) error {
	evt, ok := raw.(prescription.StatusChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", raw)
	}
	defer h.observe(time.Now())

	p, _, err := h.reader.GetDetail(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("reload prescription %s: %w", evt.ID, err)
	}

	if err := h.appendTrail(ctx, evt.ID, evt.OldStatus, evt.NewStatus, evt.Reason, audit.Entry{
		Action:         audit.ActionPrescriptionStatus,
		Details:        fmt.Sprintf("Status changed %s -> %s: %s", evt.OldStatus, evt.NewStatus, evt.Reason),
		PrescriptionID: &evt.ID,
		PharmacyID:     p.AssignedPharmacyID(),
		At:             evt.At,
	}); err != nil {
		return err
	}

	h.notify(ctx, notification.Notification{
		UserID:  p.MainMemberID(),
		Type:    notification.TypePrescriptionStatusChanged,
		Subject: "Prescription status updated",
		Message: fmt.Sprintf("Your prescription is now %s: %s", evt.NewStatus, evt.Reason),
		Channel: notification.ChannelEmail,
	})
	return nil
}

// appendTrail writes the history row and the audit row in one unit of
// work, stamping both with the acting user (or the system sentinel).
func (h *Handlers) appendTrail(ctx context.Context, id uuid.UUID, oldStatus, newStatus prescription.Status, reason string, entry audit.Entry) error {
	actorID := auth.FromContext(ctx).UserID
	entry.ActorID = actorID

	change := prescription.StatusChange{
		PrescriptionID: id,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		ActorID:        actorID,
		Reason:         reason,
		At:             entry.At,
	}
	if err := h.trail.AppendWithAudit(ctx, change, entry); err != nil {
		return fmt.Errorf("append trail: %w", err)
	}

	if h.metrics != nil {
		h.metrics.HistoryRowsWritten.Inc()
	}
	h.countAudit()
	return nil
}

// notify sends the member notification. Best-effort: failure is logged
// and counted, never propagated, so a dead notifier cannot fail the
// durable transition that triggered it.
func (h *Handlers) notify(ctx context.Context, n notification.Notification) {
	if err := h.notifier.Send(ctx, n); err != nil {
		if h.metrics != nil {
			h.metrics.NotificationsFailed.Inc()
		}
		h.logger.Warn("notification send failed",
			zap.Int64("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.NotificationsSent.Inc()
	}
}

func (h *Handlers) observe(start time.Time) {
	if h.metrics != nil {
		h.metrics.HandlerDuration.Observe(time.Since(start).Seconds())
	}
}

func (h *Handlers) countAudit() {
	if h.metrics != nil {
		h.metrics.AuditRowsWritten.Inc()
	}
}

func orUnknown(name string) string {
	if name == "" {
		return "the assigned pharmacy"
	}
	return name
}
