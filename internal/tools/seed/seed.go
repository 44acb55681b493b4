package seed

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/token"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QRSize is the edge length in pixels of written credential images.
const QRSize = 400

// Store is the subset of the attendance store seeding writes to.
type Store interface {
	storage.EventStore
	storage.RegistrationStore
}

// Options controls one seeding run.
type Options struct {
	Keyring token.Keyring
	// QRDir, when set, receives one PNG per credential.
	QRDir string
	Now   func() time.Time
}

// Credential is a seeded registration and its signed payload.
type Credential struct {
	RegistrationID string
	EventID        string
	Payload        string
	Created        bool
}

// Apply writes manifest into store and returns one credential per
// registration. Records that already exist are left untouched.
func Apply(ctx context.Context, store Store, manifest Manifest, opts Options) ([]Credential, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.QRDir != "" {
		if err := os.MkdirAll(opts.QRDir, 0o755); err != nil {
			return nil, fmt.Errorf("create qr dir: %w", err)
		}
	}

	issuedAt := now().UTC().Format(time.RFC3339)
	var credentials []Credential
	for _, event := range manifest.Events {
		err := store.PutEvent(ctx, storage.Event{ID: event.ID, Title: event.Title})
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("put event %s: %w", event.ID, err)
		}
		for _, declared := range event.Registrations {
			registration := declared.storage(event.ID)
			created := true
			if err := store.CreateRegistration(ctx, registration); err != nil {
				if !errors.Is(err, storage.ErrAlreadyExists) {
					return nil, fmt.Errorf("create registration %s: %w", registration.ID, err)
				}
				created = false
			}
			payload, err := opts.Keyring.Issue(token.Fields{
				RegistrationID:   registration.ID,
				EventID:          event.ID,
				ParticipantEmail: registration.ParticipantEmail,
				IssuedAt:         issuedAt,
			})
			if err != nil {
				return nil, fmt.Errorf("issue credential %s: %w", registration.ID, err)
			}
			if opts.QRDir != "" {
				if err := writeQR(filepath.Join(opts.QRDir, registration.ID+".png"), payload); err != nil {
					return nil, err
				}
			}
			credentials = append(credentials, Credential{
				RegistrationID: registration.ID,
				EventID:        event.ID,
				Payload:        payload,
				Created:        created,
			})
		}
	}
	return credentials, nil
}

// Print writes credentials as tab-separated lines.
func Print(out io.Writer, credentials []Credential) error {
	for _, credential := range credentials {
		status := "created"
		if !credential.Created {
			status = "exists"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", credential.EventID, credential.RegistrationID, status, credential.Payload); err != nil {
			return err
		}
	}
	return nil
}

func writeQR(path, payload string) error {
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, QRSize, QRSize, nil)
	if err != nil {
		return fmt.Errorf("encode qr %s: %w", filepath.Base(path), err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create qr %s: %w", filepath.Base(path), err)
	}
	if err := png.Encode(file, matrix); err != nil {
		_ = file.Close()
		return fmt.Errorf("write qr %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}
