// Package sqlite provides a SQLite-backed attendance storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitemigrate "github.com/louisbranch/attendmark/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const defaultIncidentLimit = 100

// Store persists attendance state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite attendance store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers; the conditional commit stays a single statement.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
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
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO events (id, title, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title`,
		event.ID,
		event.Title,
		toMillis(event.CreatedAt),
	)
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
	var createdAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, title, created_at FROM events WHERE id = ?`,
		eventID,
	).Scan(&event.ID, &event.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Event{}, storage.ErrNotFound
		}
		return storage.Event{}, fmt.Errorf("get event: %w", err)
	}
	event.CreatedAt = fromMillis(createdAt)
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
	var attendedAt sql.NullInt64
	if registration.Attended() {
		attendedAt = sql.NullInt64{Int64: toMillis(registration.AttendanceTimestamp), Valid: true}
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO registrations (
		   id,
		   event_id,
		   participant_name,
		   participant_email,
		   payment_required,
		   payment_status,
		   attendance_status,
		   attendance_at,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		registration.ID,
		registration.EventID,
		registration.ParticipantName,
		registration.ParticipantEmail,
		registration.PaymentRequired,
		string(registration.PaymentStatus),
		string(registration.AttendanceStatus),
		attendedAt,
		toMillis(registration.CreatedAt),
	)
	if err != nil {
		switch constraintOf(err) {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return storage.ErrAlreadyExists
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("event %s: %w", registration.EventID, storage.ErrNotFound)
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// GetRegistration returns one registration by ID.
func (s *Store) GetRegistration(ctx context.Context, registrationID string) (storage.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Registration{}, err
	}
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return storage.Registration{}, fmt.Errorf("registration id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, event_id, participant_name, participant_email,
		        payment_required, payment_status,
		        attendance_status, attendance_at, created_at
		   FROM registrations
		  WHERE id = ?`,
		registrationID,
	)

	var registration storage.Registration
	var paymentStatus string
	var attendanceStatus string
	var attendedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&registration.ID,
		&registration.EventID,
		&registration.ParticipantName,
		&registration.ParticipantEmail,
		&registration.PaymentRequired,
		&paymentStatus,
		&attendanceStatus,
		&attendedAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Registration{}, storage.ErrNotFound
		}
		return storage.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	registration.PaymentStatus = storage.PaymentStatus(paymentStatus)
	registration.AttendanceStatus = storage.AttendanceStatus(attendanceStatus)
	if attendedAt.Valid {
		registration.AttendanceTimestamp = fromMillis(attendedAt.Int64)
	}
	registration.CreatedAt = fromMillis(createdAt)
	return registration, nil
}

// MarkAttended commits attendance with a single conditional update.
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

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE registrations
		    SET attendance_status = 'attended',
		        attendance_at = ?
		  WHERE id = ?
		    AND attendance_status = 'not_attended'
		    AND (payment_required = 0 OR payment_status = 'verified')`,
		toMillis(at),
		registrationID,
	)
	if err != nil {
		return storage.Registration{}, fmt.Errorf("mark attended: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Registration{}, fmt.Errorf("mark attended rows: %w", err)
	}

	current, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return storage.Registration{}, err
	}
	if affected == 0 {
		return storage.Registration{}, storage.ClassifyCommitMiss(current)
	}
	return current, nil
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

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE registrations
		    SET payment_status = 'verified'
		  WHERE id = ?
		    AND payment_status IN ('pending', 'failed')`,
		registrationID,
	)
	if err != nil {
		return storage.Registration{}, false, fmt.Errorf("verify payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Registration{}, false, fmt.Errorf("verify payment rows: %w", err)
	}

	current, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return storage.Registration{}, false, err
	}
	if affected > 0 {
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

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO scan_incidents (id, kind, registration_id, event_id, station_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		incident.ID,
		string(incident.Kind),
		incident.RegistrationID,
		incident.EventID,
		incident.StationID,
		incident.Detail,
		toMillis(incident.At),
	)
	if err != nil {
		if code := constraintOf(err); code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("record incident: %w", err)
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

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, kind, registration_id, event_id, station_id, detail, created_at
		   FROM scan_incidents
		  WHERE event_id = ?
		  ORDER BY created_at DESC, id ASC
		  LIMIT ?`,
		eventID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]storage.Incident, 0)
	for rows.Next() {
		var incident storage.Incident
		var kind string
		var createdAt int64
		if err := rows.Scan(
			&incident.ID,
			&kind,
			&incident.RegistrationID,
			&incident.EventID,
			&incident.StationID,
			&incident.Detail,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list incidents: %w", err)
		}
		incident.Kind = storage.IncidentKind(kind)
		incident.At = fromMillis(createdAt)
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

func constraintOf(err error) int {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch code := sqliteErr.Code(); code {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return code
		}
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"):
		return sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	case strings.Contains(message, "foreign key constraint failed"):
		return sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return 0
}

var _ storage.Store = (*Store)(nil)
