// Package seed loads fixture events and registrations into a local
// attendance store and prints a signed credential for each registration.
package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
)

//go:embed fixtures/demo.json
var demoManifest []byte

// Manifest declares the events and registrations to seed.
type Manifest struct {
	Name   string          `json:"name"`
	Events []ManifestEvent `json:"events"`
}

// ManifestEvent declares one event and its registrations.
type ManifestEvent struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Registrations []ManifestRegistration `json:"registrations"`
}

// ManifestRegistration declares one registration.
type ManifestRegistration struct {
	ID               string `json:"id"`
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
	PaymentRequired  bool   `json:"payment_required,omitempty"`
	PaymentStatus    string `json:"payment_status,omitempty"`
}

// DemoManifest returns the built-in demo fixture.
func DemoManifest() (Manifest, error) {
	return DecodeManifest(bytes.NewReader(demoManifest))
}

// LoadManifest reads a manifest from path.
func LoadManifest(path string) (Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()
	return DecodeManifest(file)
}

// DecodeManifest parses and validates a manifest.
func DecodeManifest(r io.Reader) (Manifest, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	var manifest Manifest
	if err := decoder.Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := manifest.validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m Manifest) validate() error {
	if len(m.Events) == 0 {
		return fmt.Errorf("manifest %q declares no events", m.Name)
	}
	registrations := make(map[string]string)
	for _, event := range m.Events {
		if _, err := storage.NormalizeEvent(storage.Event{ID: event.ID, Title: event.Title}); err != nil {
			return fmt.Errorf("event %q: %w", event.ID, err)
		}
		for _, registration := range event.Registrations {
			if _, err := storage.NormalizeRegistration(registration.storage(event.ID)); err != nil {
				return fmt.Errorf("registration %q: %w", registration.ID, err)
			}
			if owner, ok := registrations[registration.ID]; ok {
				return fmt.Errorf("registration %q declared by events %q and %q", registration.ID, owner, event.ID)
			}
			registrations[registration.ID] = event.ID
		}
	}
	return nil
}

func (r ManifestRegistration) storage(eventID string) storage.Registration {
	return storage.Registration{
		ID:               r.ID,
		EventID:          eventID,
		ParticipantName:  r.ParticipantName,
		ParticipantEmail: r.ParticipantEmail,
		PaymentRequired:  r.PaymentRequired,
		PaymentStatus:    storage.PaymentStatus(r.PaymentStatus),
	}
}
