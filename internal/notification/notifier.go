// Package notification defines the outbound notification collaborator.
// Delivery is best-effort: a failed send is logged and never fails the
// transition that triggered it.
package notification

import "context"

// Type identifies the template selected by the delivery service.
type Type string

const (
	TypePrescriptionAssigned           Type = "PrescriptionAssigned"
	TypePrescriptionDispensed          Type = "PrescriptionDispensed"
	TypePrescriptionPartiallyDispensed Type = "PrescriptionPartiallyDispensed"
	TypePrescriptionDelivered          Type = "PrescriptionDelivered"
	TypePrescriptionStatusChanged      Type = "PrescriptionStatusChanged"
)

// Channel is the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "Email"
	ChannelSMS   Channel = "SMS"
)

// Notification is one outbound message to a member.
type Notification struct {
	UserID  int64   `json:"user_id"`
	Type    Type    `json:"type"`
	Subject string  `json:"subject"`
	Message string  `json:"message"`
	Channel Channel `json:"channel"`
}

// Notifier sends a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Nop discards all notifications. Used in tests and when no broker is
// configured.
type Nop struct{}

func (Nop) Send(context.Context, Notification) error { return nil }
