// Package postgres provides a PostgreSQL-backed attendance store for
// deployments where several attendance service replicas share one database.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
)

const (
	defaultIncidentLimit = 100

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

//go:embed schema.sql
var schemaSQL string

// DB is the pgx surface the store needs; *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists attendance state in PostgreSQL.
type Store struct {
	db    DB
	close func()
}

// Open connects to dsn, ensures the schema and returns a pooled store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

// New wraps an existing connection or pool without touching the schema.
func New(db DB) *Store {
	return &Store{db: db}
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s != nil && s.close != nil {
		s.close()
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutEvent inserts or renames one event.
func (s *Store) PutEvent(ctx context.Context, event storage.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	event, err := storage.NormalizeEvent(event)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO events (id, title, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`, event.ID, event.Title, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// GetEvent returns one event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (storage.Event, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Event{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return storage.Event{}, fmt.Errorf("event id is required")
	}
	var event storage.Event
	err := s.db.QueryRow(ctx, `SELECT id, title, created_at FROM events WHERE id = $1`, eventID).
		Scan(&event.ID, &event.Title, &event.CreatedAt)
	if err != nil {
		return storage.Event{}, mapError("get event", err)
	}
	event.CreatedAt = event.CreatedAt.UTC()
	return event, nil
}

// CreateRegistration inserts one registration.
func (s *Store) CreateRegistration(ctx context.Context, registration storage.Registration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	registration, err := storage.NormalizeRegistration(registration)
	if err != nil {
		return err
	}
	var attendedAt *time.Time
	if registration.Attended() {
		attendedAt = &registration.AttendanceTimestamp
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO registrations (
		  id, event_id, participant_name, participant_email,
		  payment_required, payment_status, attendance_status, attendance_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		registration.ID,
		registration.EventID,
		registration.ParticipantName,
		registration.ParticipantEmail,
		registration.PaymentRequired,
		string(registration.PaymentStatus),
		string(registration.AttendanceStatus),
		attendedAt,
		registration.CreatedAt,
	)
	if err != nil {
		return mapError("create registration", err)
	}
	return nil
}

const selectRegistration = `
	SELECT id, event_id, participant_name, participant_email,
	       payment_required, payment_status, attendance_status, attendance_at, created_at
	  FROM registrations`

// GetRegistration returns one registration by ID.
func (s *Store) GetRegistration(ctx context.Context, registrationID string) (storage.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Registration{}, err
	}
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return storage.Registration{}, fmt.Errorf("registration id is required")
	}
	return scanRegistration(s.db.QueryRow(ctx, selectRegistration+` WHERE id = $1`, registrationID))
}

// MarkAttended commits attendance with a single conditional update and
// returns the committed row.
func (s *Store) MarkAttended(ctx context.Context, registrationID string, at time.Time) (storage.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Registration{}, err
	}
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return storage.Registration{}, fmt.Errorf("registration id is required")
	}
	if at.IsZero() {
		return storage.Registration{}, fmt.Errorf("attendance timestamp is required")
	}

	committed, err := scanRegistration(s.db.QueryRow(ctx, `
		UPDATE registrations
		   SET attendance_status = 'attended', attendance_at = $2
		 WHERE id = $1
		   AND attendance_status = 'not_attended'
		   AND (NOT payment_required OR payment_status = 'verified')
		RETURNING id, event_id, participant_name, participant_email,
		          payment_required, payment_status, attendance_status, attendance_at, created_at
	`, registrationID, at.UTC()))
	if err == nil {
		return committed, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Registration{}, fmt.Errorf("mark attended: %w", err)
	}
	current, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return storage.Registration{}, err
	}
	return storage.Registration{}, storage.ClassifyCommitMiss(current)
}

// VerifyPayment moves a pending or failed payment to verified.
func (s *Store) VerifyPayment(ctx context.Context, registrationID string) (storage.Registration, bool, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Registration{}, false, err
	}
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return storage.Registration{}, false, fmt.Errorf("registration id is required")
	}

	cmd, err := s.db.Exec(ctx, `
		UPDATE registrations SET payment_status = 'verified'
		 WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`, registrationID)
	if err != nil {
		return storage.Registration{}, false, fmt.Errorf("verify payment: %w", err)
	}
	current, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return storage.Registration{}, false, err
	}
	if cmd.RowsAffected() > 0 {
		return current, true, nil
	}
	if current.PaymentStatus == storage.PaymentVerified {
		return current, false, nil
	}
	return storage.Registration{}, false, storage.ErrPaymentNotRequired
}

// RecordIncident stores one incident, assigning an ID when missing.
func (s *Store) RecordIncident(ctx context.Context, incident storage.Incident) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(string(incident.Kind)) == "" {
		return fmt.Errorf("incident kind is required")
	}
	if strings.TrimSpace(incident.EventID) == "" {
		return fmt.Errorf("incident event id is required")
	}
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.At.IsZero() {
		incident.At = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO scan_incidents (id, kind, registration_id, event_id, station_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, incident.ID, string(incident.Kind), incident.RegistrationID, incident.EventID, incident.StationID, incident.Detail, incident.At.UTC())
	if err != nil {
		return mapError("record incident", err)
	}
	return nil
}

// ListIncidents returns the newest incidents recorded for one event.
func (s *Store) ListIncidents(ctx context.Context, eventID string, limit int) ([]storage.Incident, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if limit <= 0 {
		limit = defaultIncidentLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, registration_id, event_id, station_id, detail, created_at
		  FROM scan_incidents
		 WHERE event_id = $1
		 ORDER BY created_at DESC, id ASC
		 LIMIT $2
	`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]storage.Incident, 0)
	for rows.Next() {
		var incident storage.Incident
		var kind string
		if err := rows.Scan(
			&incident.ID,
			&kind,
			&incident.RegistrationID,
			&incident.EventID,
			&incident.StationID,
			&incident.Detail,
			&incident.At,
		); err != nil {
			return nil, fmt.Errorf("list incidents: %w", err)
		}
		incident.Kind = storage.IncidentKind(kind)
		incident.At = incident.At.UTC()
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

func scanRegistration(row pgx.Row) (storage.Registration, error) {
	var registration storage.Registration
	var paymentStatus string
	var attendanceStatus string
	var attendedAt *time.Time
	err := row.Scan(
		&registration.ID,
		&registration.EventID,
		&registration.ParticipantName,
		&registration.ParticipantEmail,
		&registration.PaymentRequired,
		&paymentStatus,
		&attendanceStatus,
		&attendedAt,
		&registration.CreatedAt,
	)
	if err != nil {
		return storage.Registration{}, mapError("get registration", err)
	}
	registration.PaymentStatus = storage.PaymentStatus(paymentStatus)
	registration.AttendanceStatus = storage.AttendanceStatus(attendanceStatus)
	if attendedAt != nil {
		registration.AttendanceTimestamp = attendedAt.UTC()
	}
	registration.CreatedAt = registration.CreatedAt.UTC()
	return registration, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return storage.ErrAlreadyExists
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ storage.Store = (*Store)(nil)
