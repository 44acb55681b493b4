// Package events publishes attendance domain events to other subsystems
// (reporting, notifications) over an AMQP topic exchange.
package events

import (
	"context"
	"time"
)

// Routing keys.
const (
	RoutingAttendanceMarked = "attendance.marked"
	RoutingPaymentVerified  = "payment.verified"
)

// AttendanceMarked is emitted after an attendance commit.
type AttendanceMarked struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	StationID      string    `json:"station_id,omitempty"`
	AttendedAt     time.Time `json:"attended_at"`
}

// PaymentVerified is emitted after a payment moves to verified.
type PaymentVerified struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	OperatorID     string    `json:"operator_id,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// Publisher emits attendance events.
type Publisher interface {
	PublishAttendanceMarked(ctx context.Context, event AttendanceMarked) error
	PublishPaymentVerified(ctx context.Context, event PaymentVerified) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishAttendanceMarked(context.Context, AttendanceMarked) error { return nil }
func (Nop) PublishPaymentVerified(context.Context, PaymentVerified) error   { return nil }
func (Nop) Close() error                                                    { return nil }

var _ Publisher = Nop{}
