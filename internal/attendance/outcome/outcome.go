// Package outcome defines the closed set of results a verification attempt
// can produce. It is the whole contract between the verification service and
// any operator-facing surface.
package outcome

import (
	"fmt"
	"time"
)

// Kind discriminates an Outcome.
type Kind string

const (
	KindSuccess            Kind = "success"
	KindAlreadyAttended    Kind = "already_attended"
	KindEventMismatch      Kind = "event_mismatch"
	KindDataInconsistency  Kind = "data_inconsistency"
	KindPaymentNotVerified Kind = "payment_not_verified"
	KindCooldownActive     Kind = "cooldown_active"
	KindMalformed          Kind = "malformed"
	KindProcessingError    Kind = "processing_error"
)

var kinds = map[Kind]struct{}{
	KindSuccess:            {},
	KindAlreadyAttended:    {},
	KindEventMismatch:      {},
	KindDataInconsistency:  {},
	KindPaymentNotVerified: {},
	KindCooldownActive:     {},
	KindMalformed:          {},
	KindProcessingError:    {},
}

// ParseKind validates a wire value.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	if _, ok := kinds[kind]; !ok {
		return "", fmt.Errorf("unknown outcome kind %q", value)
	}
	return kind, nil
}

// Outcome is the result of one verification attempt. Only the fields that
// belong to Kind are populated.
type Outcome struct {
	Kind            Kind      `json:"kind"`
	RegistrationID  string    `json:"registration_id,omitempty"`
	ParticipantName string    `json:"participant_name,omitempty"`
	EventTitle      string    `json:"event_title,omitempty"`
	AttendedAt      time.Time `json:"attended_at,omitzero"`
}

// Success reports a committed attendance.
func Success(participantName, eventTitle string, attendedAt time.Time) Outcome {
	return Outcome{
		Kind:            KindSuccess,
		ParticipantName: participantName,
		EventTitle:      eventTitle,
		AttendedAt:      attendedAt.UTC(),
	}
}

// AlreadyAttended reports a registration whose attendance was committed earlier.
func AlreadyAttended() Outcome { return Outcome{Kind: KindAlreadyAttended} }

// EventMismatch reports a credential issued for a different event.
func EventMismatch() Outcome { return Outcome{Kind: KindEventMismatch} }

// DataInconsistency reports a credential that disagrees with the stored
// registration.
func DataInconsistency() Outcome { return Outcome{Kind: KindDataInconsistency} }

// PaymentNotVerified reports a registration blocked on payment.
func PaymentNotVerified(registrationID, participantName string) Outcome {
	return Outcome{
		Kind:            KindPaymentNotVerified,
		RegistrationID:  registrationID,
		ParticipantName: participantName,
	}
}

// CooldownActive reports an attempt inside the inter-arrival window.
func CooldownActive() Outcome { return Outcome{Kind: KindCooldownActive} }

// Malformed reports a payload that is not a credential.
func Malformed() Outcome { return Outcome{Kind: KindMalformed} }

// ProcessingError reports a failed attempt that may be retried by rescanning.
func ProcessingError() Outcome { return Outcome{Kind: KindProcessingError} }

// Silent reports whether the outcome must not be shown to the operator.
func (o Outcome) Silent() bool {
	return o.Kind == KindMalformed
}

// Committed reports whether the attempt changed attendance state.
func (o Outcome) Committed() bool {
	return o.Kind == KindSuccess
}
