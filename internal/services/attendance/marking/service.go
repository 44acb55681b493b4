// Package marking implements attendance verification: it validates a
// presented credential against the registration store and commits the
// one-way attendance transition at most once per registration.
package marking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	"github.com/louisbranch/attendmark/internal/attendance/token"
	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	"github.com/louisbranch/attendmark/internal/platform/timeouts"
	"github.com/louisbranch/attendmark/internal/services/attendance/cooldown"
	"github.com/louisbranch/attendmark/internal/services/attendance/events"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/attendmark/internal/services/attendance/marking"

// Store is the persistence surface the service uses.
type Store interface {
	storage.EventStore
	storage.RegistrationStore
	storage.IncidentStore
}

// VerifyRequest is one presented payload scanned under an event.
type VerifyRequest struct {
	Payload   string
	EventID   string
	StationID string
}

// PaymentRequest asks for a registration's payment to be marked verified.
type PaymentRequest struct {
	RegistrationID string
	OperatorID     string
}

// Service verifies credentials and commits attendance.
type Service struct {
	store     Store
	keyring   token.Keyring
	cooldown  cooldown.Governor
	publisher events.Publisher
	tracer    trace.Tracer
	clock     func() time.Time
	logf      func(format string, args ...any)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the commit clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLogf overrides the log sink.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Service) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// NewService creates a marking service. A nil governor disables the
// authoritative cooldown.
func NewService(store Store, keyring token.Keyring, governor cooldown.Governor, opts ...Option) *Service {
	if governor == nil {
		governor = cooldown.NewMemory(0, nil)
	}
	s := &Service{
		store:     store,
		keyring:   keyring,
		cooldown:  governor,
		publisher: events.Nop{},
		tracer:    otel.Tracer(tracerName),
		clock:     time.Now,
		logf:      log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs one verification attempt. Rejections are reported as
// outcomes; a non-nil error means the attempt could not be evaluated and
// the caller should surface outcome.KindProcessingError.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (outcome.Outcome, error) {
	if s == nil || s.store == nil {
		return outcome.ProcessingError(), fmt.Errorf("attendance store is not configured")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return outcome.ProcessingError(), apperrors.New(apperrors.CodeScanRequestInvalid, "event id is required")
	}
	stationID := strings.TrimSpace(req.StationID)

	ctx, span := s.tracer.Start(ctx, "attendance.verify", trace.WithAttributes(
		attribute.String("attendance.event_id", eventID),
		attribute.String("attendance.station_id", stationID),
	))
	defer span.End()

	result, err := s.verify(ctx, req.Payload, eventID, stationID)
	span.SetAttributes(attribute.String("attendance.outcome", string(result.Kind)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "verification failed")
	}
	return result, err
}

func (s *Service) verify(ctx context.Context, payload, eventID, stationID string) (outcome.Outcome, error) {
	fields, err := token.Decode(payload)
	if err != nil {
		return outcome.Malformed(), nil
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("attendance.registration_id", fields.RegistrationID))

	if !s.keyring.Verify(fields) {
		s.logf("integrity check failed: registration=%s event=%s station=%s", fields.RegistrationID, fields.EventID, stationID)
		s.recordIncident(ctx, storage.Incident{
			Kind:           storage.IncidentIntegrityFailure,
			RegistrationID: fields.RegistrationID,
			EventID:        eventID,
			StationID:      stationID,
			Detail:         "integrity tag did not verify",
		})
		return outcome.ProcessingError(), nil
	}

	if fields.EventID != eventID {
		s.recordIncident(ctx, storage.Incident{
			Kind:           storage.IncidentEventMismatch,
			RegistrationID: fields.RegistrationID,
			EventID:        eventID,
			StationID:      stationID,
			Detail:         "credential issued for event " + fields.EventID,
		})
		return outcome.EventMismatch(), nil
	}

	admitted, err := s.cooldown.Admit(ctx, fields.RegistrationID)
	if err != nil {
		return outcome.ProcessingError(), fmt.Errorf("cooldown: %w", err)
	}
	if !admitted {
		return outcome.CooldownActive(), nil
	}

	registration, err := s.store.GetRegistration(ctx, fields.RegistrationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.inconsistent(ctx, fields, stationID, "registration not found"), nil
		}
		return outcome.ProcessingError(), fmt.Errorf("lookup registration: %w", err)
	}
	if registration.EventID != fields.EventID {
		return s.inconsistent(ctx, fields, stationID, "registration belongs to event "+registration.EventID), nil
	}
	if !strings.EqualFold(strings.TrimSpace(registration.ParticipantEmail), fields.ParticipantEmail) {
		return s.inconsistent(ctx, fields, stationID, "participant email does not match registration"), nil
	}

	if registration.Attended() {
		return outcome.AlreadyAttended(), nil
	}
	if !registration.PaymentSatisfied() {
		return outcome.PaymentNotVerified(registration.ID, registration.ParticipantName), nil
	}

	committed, err := s.store.MarkAttended(ctx, registration.ID, s.clock().UTC())
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrAlreadyAttended):
		return outcome.AlreadyAttended(), nil
	case errors.Is(err, storage.ErrPaymentUnverified):
		return outcome.PaymentNotVerified(registration.ID, registration.ParticipantName), nil
	case errors.Is(err, storage.ErrNotFound):
		return s.inconsistent(ctx, fields, stationID, "registration disappeared before commit"), nil
	default:
		return outcome.ProcessingError(), fmt.Errorf("commit attendance: %w", err)
	}

	title := s.eventTitle(ctx, committed.EventID)
	s.publishMarked(ctx, events.AttendanceMarked{
		RegistrationID: committed.ID,
		EventID:        committed.EventID,
		StationID:      stationID,
		AttendedAt:     committed.AttendanceTimestamp,
	})
	return outcome.Success(committed.ParticipantName, title, committed.AttendanceTimestamp), nil
}

// VerifyPayment moves a registration's payment from pending or failed to
// verified. Repeating it on a verified registration succeeds without change.
func (s *Service) VerifyPayment(ctx context.Context, req PaymentRequest) (storage.Registration, error) {
	if s == nil || s.store == nil {
		return storage.Registration{}, fmt.Errorf("attendance store is not configured")
	}
	registrationID := strings.TrimSpace(req.RegistrationID)
	if registrationID == "" {
		return storage.Registration{}, apperrors.New(apperrors.CodePaymentRequestInvalid, "registration id is required")
	}

	ctx, span := s.tracer.Start(ctx, "attendance.verify_payment", trace.WithAttributes(
		attribute.String("attendance.registration_id", registrationID),
	))
	defer span.End()

	registration, changed, err := s.store.VerifyPayment(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return storage.Registration{}, apperrors.WithMetadata(
				apperrors.CodeRegistrationNotFound,
				"registration not found",
				map[string]string{"RegistrationID": registrationID},
			)
		case errors.Is(err, storage.ErrPaymentNotRequired):
			return storage.Registration{}, apperrors.WithMetadata(
				apperrors.CodePaymentNotRequired,
				"registration does not require payment",
				map[string]string{"RegistrationID": registrationID},
			)
		default:
			span.SetStatus(otelcodes.Error, "verify payment failed")
			return storage.Registration{}, apperrors.Wrap(apperrors.CodeUnknown, "verify payment", err)
		}
	}
	if !changed {
		return registration, nil
	}

	s.logf("payment verified: registration=%s operator=%s", registration.ID, req.OperatorID)
	// A blocked scan armed the cooldown; let the participant rescan right away.
	if err := s.cooldown.Release(ctx, registration.ID); err != nil {
		s.logf("release cooldown for %s: %v", registration.ID, err)
	}
	s.publishPaymentVerified(ctx, events.PaymentVerified{
		RegistrationID: registration.ID,
		EventID:        registration.EventID,
		OperatorID:     req.OperatorID,
		VerifiedAt:     s.clock().UTC(),
	})
	return registration, nil
}

// ListIncidents returns the newest incidents recorded for an event.
func (s *Service) ListIncidents(ctx context.Context, eventID string, limit int) ([]storage.Incident, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("attendance store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, apperrors.New(apperrors.CodeScanRequestInvalid, "event id is required")
	}
	incidents, err := s.store.ListIncidents(ctx, eventID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list incidents", err)
	}
	return incidents, nil
}

func (s *Service) inconsistent(ctx context.Context, fields token.Fields, stationID, detail string) outcome.Outcome {
	s.logf("data inconsistency: registration=%s event=%s station=%s: %s", fields.RegistrationID, fields.EventID, stationID, detail)
	s.recordIncident(ctx, storage.Incident{
		Kind:           storage.IncidentDataInconsistency,
		RegistrationID: fields.RegistrationID,
		EventID:        fields.EventID,
		StationID:      stationID,
		Detail:         detail,
	})
	return outcome.DataInconsistency()
}

func (s *Service) eventTitle(ctx context.Context, eventID string) string {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		s.logf("load event %s: %v", eventID, err)
		return ""
	}
	return event.Title
}

func (s *Service) recordIncident(ctx context.Context, incident storage.Incident) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.SideEffect)
	defer cancel()
	incident.At = s.clock().UTC()
	if err := s.store.RecordIncident(ctx, incident); err != nil {
		s.logf("record %s incident: %v", incident.Kind, err)
	}
}

func (s *Service) publishMarked(ctx context.Context, event events.AttendanceMarked) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.SideEffect)
	defer cancel()
	if err := s.publisher.PublishAttendanceMarked(ctx, event); err != nil {
		s.logf("publish %s for %s: %v", events.RoutingAttendanceMarked, event.RegistrationID, err)
	}
}

func (s *Service) publishPaymentVerified(ctx context.Context, event events.PaymentVerified) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.SideEffect)
	defer cancel()
	if err := s.publisher.PublishPaymentVerified(ctx, event); err != nil {
		s.logf("publish %s for %s: %v", events.RoutingPaymentVerified, event.RegistrationID, err)
	}
}
