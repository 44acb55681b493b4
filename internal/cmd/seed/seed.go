// Package seed parses seed command flags and loads fixture data into the
// local attendance store.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/attendmark/internal/attendance/token"
	"github.com/louisbranch/attendmark/internal/platform/config"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage/sqlite"
	"github.com/louisbranch/attendmark/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath       string
	ManifestPath string
	QRDir        string
	TokenSecret  string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath:      envOrDefault(lookup, "ATTENDMARK_ATTENDANCE_DB_PATH", filepath.Join("data", "attendance.db")),
		TokenSecret: envOrDefault(lookup, "ATTENDMARK_TOKEN_SECRET", ""),
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "attendance sqlite database path")
	fs.StringVar(&cfg.ManifestPath, "manifest", "", "fixture manifest path (default: built-in demo)")
	fs.StringVar(&cfg.QRDir, "qr-dir", "", "directory to write one credential QR code per registration")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := config.RequireValue("ATTENDMARK_TOKEN_SECRET", cfg.TokenSecret); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	keyring, err := token.ParseKeyring(cfg.TokenSecret, nil)
	if err != nil {
		return fmt.Errorf("load credential secret: %w", err)
	}

	manifest, err := loadManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open attendance sqlite store: %w", err)
	}
	defer store.Close()

	credentials, err := seed.Apply(ctx, store, manifest, seed.Options{Keyring: keyring, QRDir: cfg.QRDir})
	if err != nil {
		return err
	}
	return seed.Print(out, credentials)
}

func loadManifest(path string) (seed.Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return seed.DemoManifest()
	}
	return seed.LoadManifest(path)
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
