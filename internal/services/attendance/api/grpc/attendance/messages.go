package attendance

import (
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
)

// VerifyRequest presents one scanned payload under an event.
type VerifyRequest struct {
	EventID   string `json:"event_id"`
	StationID string `json:"station_id,omitempty"`
	Payload   string `json:"payload"`
}

// VerifyResponse carries the verification outcome.
type VerifyResponse struct {
	Outcome outcome.Outcome `json:"outcome"`
}

// VerifyPaymentRequest asks for a registration's payment to be verified.
type VerifyPaymentRequest struct {
	RegistrationID string `json:"registration_id"`
}

// VerifyPaymentResponse returns the registration after the transition.
type VerifyPaymentResponse struct {
	Registration Registration `json:"registration"`
}

// ListIncidentsRequest lists recorded incidents for an event.
type ListIncidentsRequest struct {
	EventID string `json:"event_id"`
	Limit   int    `json:"limit,omitempty"`
}

// ListIncidentsResponse returns incidents newest first.
type ListIncidentsResponse struct {
	Incidents []Incident `json:"incidents"`
}

// Registration is the wire view of a registration.
type Registration struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	ParticipantName  string    `json:"participant_name"`
	PaymentRequired  bool      `json:"payment_required"`
	PaymentStatus    string    `json:"payment_status"`
	AttendanceStatus string    `json:"attendance_status"`
	AttendedAt       time.Time `json:"attended_at,omitzero"`
}

// Incident is the wire view of a recorded incident.
type Incident struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	RegistrationID string    `json:"registration_id,omitempty"`
	EventID        string    `json:"event_id"`
	StationID      string    `json:"station_id,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

// RegistrationFromStorage converts a stored registration to its wire view.
// The participant email is not exposed.
func RegistrationFromStorage(registration storage.Registration) Registration {
	return Registration{
		ID:               registration.ID,
		EventID:          registration.EventID,
		ParticipantName:  registration.ParticipantName,
		PaymentRequired:  registration.PaymentRequired,
		PaymentStatus:    string(registration.PaymentStatus),
		AttendanceStatus: string(registration.AttendanceStatus),
		AttendedAt:       registration.AttendanceTimestamp,
	}
}

// IncidentsFromStorage converts stored incidents to their wire view.
func IncidentsFromStorage(incidents []storage.Incident) []Incident {
	out := make([]Incident, 0, len(incidents))
	for _, incident := range incidents {
		out = append(out, Incident{
			ID:             incident.ID,
			Kind:           string(incident.Kind),
			RegistrationID: incident.RegistrationID,
			EventID:        incident.EventID,
			StationID:      incident.StationID,
			Detail:         incident.Detail,
			At:             incident.At,
		})
	}
	return out
}
