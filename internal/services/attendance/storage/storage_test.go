package storage

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeRegistrationDefaults(t *testing.T) {
	t.Parallel()

	free, err := NormalizeRegistration(Registration{ID: " r1 ", EventID: "e1", ParticipantEmail: "a@b.com"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if free.ID != "r1" {
		t.Fatalf("id = %q, want r1", free.ID)
	}
	if free.PaymentStatus != PaymentNone || free.AttendanceStatus != AttendanceNotAttended {
		t.Fatalf("defaults = %s/%s", free.PaymentStatus, free.AttendanceStatus)
	}
	if free.CreatedAt.IsZero() {
		t.Fatal("expected created_at default")
	}

	paid, err := NormalizeRegistration(Registration{ID: "r2", EventID: "e1", ParticipantEmail: "a@b.com", PaymentRequired: true})
	if err != nil {
		t.Fatalf("normalize paid: %v", err)
	}
	if paid.PaymentStatus != PaymentPending {
		t.Fatalf("paid status = %s, want pending", paid.PaymentStatus)
	}
}

func TestNormalizeRegistrationRejectsInvalid(t *testing.T) {
	t.Parallel()

	base := Registration{ID: "r1", EventID: "e1", ParticipantEmail: "a@b.com"}
	tests := map[string]func(*Registration){
		"missing id":         func(r *Registration) { r.ID = " " },
		"missing event":      func(r *Registration) { r.EventID = "" },
		"missing email":      func(r *Registration) { r.ParticipantEmail = "" },
		"unknown payment":    func(r *Registration) { r.PaymentStatus = "refunded" },
		"required but none":  func(r *Registration) { r.PaymentRequired = true; r.PaymentStatus = PaymentNone },
		"unknown attendance": func(r *Registration) { r.AttendanceStatus = "maybe" },
		"attended no time":   func(r *Registration) { r.AttendanceStatus = AttendanceAttended },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			input := base
			mutate(&input)
			if _, err := NormalizeRegistration(input); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeEvent(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeEvent(Event{ID: "e1"}); err == nil {
		t.Fatal("expected missing title error")
	}
	event, err := NormalizeEvent(Event{ID: " e1 ", Title: " Go Meetup "})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.ID != "e1" || event.Title != "Go Meetup" {
		t.Fatalf("event = %+v", event)
	}
}

func TestClassifyCommitMiss(t *testing.T) {
	t.Parallel()

	attended := Registration{ID: "r1", AttendanceStatus: AttendanceAttended, AttendanceTimestamp: time.Now()}
	if err := ClassifyCommitMiss(attended); !errors.Is(err, ErrAlreadyAttended) {
		t.Fatalf("attended miss = %v", err)
	}
	unpaid := Registration{ID: "r1", AttendanceStatus: AttendanceNotAttended, PaymentRequired: true, PaymentStatus: PaymentFailed}
	if err := ClassifyCommitMiss(unpaid); !errors.Is(err, ErrPaymentUnverified) {
		t.Fatalf("unpaid miss = %v", err)
	}
	open := Registration{ID: "r1", AttendanceStatus: AttendanceNotAttended}
	if err := ClassifyCommitMiss(open); err == nil || errors.Is(err, ErrAlreadyAttended) {
		t.Fatalf("open miss = %v", err)
	}
}

func TestPaymentSatisfied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		required bool
		status   PaymentStatus
		want     bool
	}{
		{false, PaymentNone, true},
		{true, PaymentPending, false},
		{true, PaymentFailed, false},
		{true, PaymentVerified, true},
	}
	for _, tc := range tests {
		r := Registration{PaymentRequired: tc.required, PaymentStatus: tc.status}
		if got := r.PaymentSatisfied(); got != tc.want {
			t.Fatalf("required=%v status=%s satisfied = %v, want %v", tc.required, tc.status, got, tc.want)
		}
	}
}
