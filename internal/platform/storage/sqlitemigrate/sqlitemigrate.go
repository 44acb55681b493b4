// Package sqlitemigrate applies embedded, forward-only SQL migrations to a
// SQLite database. Each applied file is recorded with a checksum so an
// edited migration is reported instead of silently skipped.
package sqlitemigrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const (
	migrationTable = "schema_migrations"
	upMarker       = "-- +migrate Up"
	downMarker     = "-- +migrate Down"
)

// ErrChecksumMismatch reports an applied migration whose file has changed.
var ErrChecksumMismatch = errors.New("migration changed after it was applied")

// Migration is one parsed migration file.
type Migration struct {
	Name     string
	Up       string
	Checksum string
}

// Load reads every .sql file under root, ordered by name.
func Load(migrationFS fs.FS, root string) ([]Migration, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		filePath := path.Join(root, entry.Name())
		content, err := fs.ReadFile(migrationFS, filePath)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Name:     filePath,
			Up:       UpSection(string(content)),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return strings.Compare(a.Name, b.Name) })
	return migrations, nil
}

// ApplyMigrations applies every migration under migrationRoot that has not
// been recorded yet, each in its own transaction.
func ApplyMigrations(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sqlDB == nil {
		return errors.New("sql db is required")
	}
	migrations, err := Load(migrationFS, migrationRoot)
	if err != nil {
		return err
	}

	if _, err := sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, migration := range migrations {
		if err := apply(ctx, sqlDB, migration); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, sqlDB *sql.DB, migration Migration) error {
	recorded, found, err := recordedChecksum(ctx, sqlDB, migration.Name)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", migration.Name, err)
	}
	if found {
		if recorded != "" && recorded != migration.Checksum {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, migration.Name)
		}
		return nil
	}
	if strings.TrimSpace(migration.Up) == "" {
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", migration.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil && !IsAlreadyExistsError(err) {
		return fmt.Errorf("exec migration %s: %w", migration.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+migrationTable+` (name, checksum, applied_at) VALUES (?, ?, ?)`,
		migration.Name, migration.Checksum, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", migration.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", migration.Name, err)
	}
	return nil
}

// UpSection returns the statements between the Up and Down markers. A file
// without an Up marker is applied whole.
func UpSection(content string) string {
	_, after, found := strings.Cut(content, upMarker)
	if !found {
		return content
	}
	up, _, _ := strings.Cut(after, downMarker)
	return up
}

// IsAlreadyExistsError reports whether err comes from DDL whose target is
// already in place.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func recordedChecksum(ctx context.Context, sqlDB *sql.DB, name string) (string, bool, error) {
	var checksum string
	err := sqlDB.QueryRowContext(ctx, `SELECT checksum FROM `+migrationTable+` WHERE name = ?`, name).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return checksum, true, nil
}
