// Package storage defines persistence contracts for attendance service state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrAlreadyAttended indicates the attendance commit lost to an earlier one.
	ErrAlreadyAttended = errors.New("attendance already recorded")
	// ErrPaymentUnverified indicates the commit precondition on payment failed.
	ErrPaymentUnverified = errors.New("payment not verified")
	// ErrPaymentNotRequired indicates a payment transition on a free registration.
	ErrPaymentNotRequired = errors.New("payment not required")
)

// PaymentStatus is the payment state of one registration.
type PaymentStatus string

const (
	PaymentNone     PaymentStatus = "none"
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentFailed   PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentNone, PaymentPending, PaymentVerified, PaymentFailed:
		return true
	}
	return false
}

// AttendanceStatus is the attendance state of one registration. It only moves
// from AttendanceNotAttended to AttendanceAttended.
type AttendanceStatus string

const (
	AttendanceNotAttended AttendanceStatus = "not_attended"
	AttendanceAttended    AttendanceStatus = "attended"
)

// Event is the subset of event state the attendance engine reads.
type Event struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Registration is one participant's registration for one event.
type Registration struct {
	ID                  string
	EventID             string
	ParticipantName     string
	ParticipantEmail    string
	PaymentRequired     bool
	PaymentStatus       PaymentStatus
	AttendanceStatus    AttendanceStatus
	AttendanceTimestamp time.Time
	CreatedAt           time.Time
}

// PaymentSatisfied reports whether the payment precondition for attendance holds.
func (r Registration) PaymentSatisfied() bool {
	return !r.PaymentRequired || r.PaymentStatus == PaymentVerified
}

// Attended reports whether attendance has been committed.
func (r Registration) Attended() bool {
	return r.AttendanceStatus == AttendanceAttended
}

// IncidentKind classifies a recorded security or consistency incident.
type IncidentKind string

const (
	IncidentIntegrityFailure  IncidentKind = "integrity_failure"
	IncidentEventMismatch     IncidentKind = "event_mismatch"
	IncidentDataInconsistency IncidentKind = "data_inconsistency"
)

// Incident is one rejected scan kept for manual investigation.
type Incident struct {
	ID             string
	Kind           IncidentKind
	RegistrationID string
	EventID        string
	StationID      string
	Detail         string
	At             time.Time
}

// EventStore reads events.
type EventStore interface {
	PutEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string) (Event, error)
}

// RegistrationStore reads registrations and owns the two conditional writes
// this engine performs on them.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, registration Registration) error
	GetRegistration(ctx context.Context, registrationID string) (Registration, error)
	// MarkAttended commits attendance only while the registration is still
	// not attended and its payment precondition holds. When the condition
	// fails it returns ErrNotFound, ErrAlreadyAttended or ErrPaymentUnverified.
	MarkAttended(ctx context.Context, registrationID string, at time.Time) (Registration, error)
	// VerifyPayment moves payment from pending or failed to verified. The
	// returned bool is false when the payment was already verified.
	VerifyPayment(ctx context.Context, registrationID string) (Registration, bool, error)
}

// IncidentStore records and lists incidents.
type IncidentStore interface {
	RecordIncident(ctx context.Context, incident Incident) error
	ListIncidents(ctx context.Context, eventID string, limit int) ([]Incident, error)
}

// Store is the full attendance persistence surface.
type Store interface {
	EventStore
	RegistrationStore
	IncidentStore
	Close() error
}

// NormalizeEvent trims and validates an event before insert.
func NormalizeEvent(event Event) (Event, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.Title = strings.TrimSpace(event.Title)
	if event.ID == "" {
		return Event{}, fmt.Errorf("event id is required")
	}
	if event.Title == "" {
		return Event{}, fmt.Errorf("event title is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	return event, nil
}

// NormalizeRegistration trims and validates a registration before insert.
func NormalizeRegistration(registration Registration) (Registration, error) {
	registration.ID = strings.TrimSpace(registration.ID)
	registration.EventID = strings.TrimSpace(registration.EventID)
	registration.ParticipantName = strings.TrimSpace(registration.ParticipantName)
	registration.ParticipantEmail = strings.TrimSpace(registration.ParticipantEmail)
	if registration.ID == "" {
		return Registration{}, fmt.Errorf("registration id is required")
	}
	if registration.EventID == "" {
		return Registration{}, fmt.Errorf("event id is required")
	}
	if registration.ParticipantEmail == "" {
		return Registration{}, fmt.Errorf("participant email is required")
	}
	if registration.PaymentStatus == "" {
		registration.PaymentStatus = PaymentNone
		if registration.PaymentRequired {
			registration.PaymentStatus = PaymentPending
		}
	}
	if !registration.PaymentStatus.Valid() {
		return Registration{}, fmt.Errorf("payment status %q is invalid", registration.PaymentStatus)
	}
	if registration.PaymentRequired && registration.PaymentStatus == PaymentNone {
		return Registration{}, fmt.Errorf("payment status is required when payment is required")
	}
	switch registration.AttendanceStatus {
	case "":
		registration.AttendanceStatus = AttendanceNotAttended
	case AttendanceNotAttended, AttendanceAttended:
	default:
		return Registration{}, fmt.Errorf("attendance status %q is invalid", registration.AttendanceStatus)
	}
	if registration.Attended() && registration.AttendanceTimestamp.IsZero() {
		return Registration{}, fmt.Errorf("attendance timestamp is required when attended")
	}
	if !registration.Attended() {
		registration.AttendanceTimestamp = time.Time{}
	}
	if registration.CreatedAt.IsZero() {
		registration.CreatedAt = time.Now()
	}
	registration.CreatedAt = registration.CreatedAt.UTC()
	registration.AttendanceTimestamp = registration.AttendanceTimestamp.UTC()
	return registration, nil
}

// ClassifyCommitMiss explains why a conditional attendance commit matched no
// row, given the registration as re-read after the miss.
func ClassifyCommitMiss(current Registration) error {
	if current.Attended() {
		return ErrAlreadyAttended
	}
	if !current.PaymentSatisfied() {
		return ErrPaymentUnverified
	}
	return fmt.Errorf("attendance commit for %s matched no row", current.ID)
}
