// Package scanstation parses scan station flags and launches the operator
// console.
package scanstation

import (
	"context"
	"flag"
	"os"
	"time"

	entrypoint "github.com/louisbranch/attendmark/internal/platform/cmd"
	"github.com/louisbranch/attendmark/internal/platform/config"
	station "github.com/louisbranch/attendmark/internal/services/scanstation/app"
)

// Config holds scan station command configuration.
type Config struct {
	AttendanceAddr string        `env:"ATTENDMARK_ATTENDANCE_ADDR" envDefault:"localhost:8095"`
	EventID        string        `env:"ATTENDMARK_SCAN_EVENT_ID"`
	StationID      string        `env:"ATTENDMARK_SCAN_STATION_ID"`
	Interval       time.Duration `env:"ATTENDMARK_SCAN_INTERVAL" envDefault:"250ms"`
	Cooldown       time.Duration `env:"ATTENDMARK_SCAN_COOLDOWN" envDefault:"2s"`
	FramesDir      string        `env:"ATTENDMARK_SCAN_FRAMES_DIR"`
	OperatorToken  string        `env:"ATTENDMARK_OPERATOR_TOKEN"`
	Locale         string        `env:"ATTENDMARK_SCAN_LOCALE" envDefault:"en-US"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.AttendanceAddr, "attendance-addr", cfg.AttendanceAddr, "The attendance gRPC server address")
	fs.StringVar(&cfg.EventID, "event", cfg.EventID, "The event this station scans for")
	fs.StringVar(&cfg.StationID, "station", cfg.StationID, "The station identifier reported with each scan")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Frame sampling interval")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "Pause after a successful check-in")
	fs.StringVar(&cfg.FramesDir, "frames-dir", cfg.FramesDir, "Directory of camera frames (empty for manual input only)")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Operator message locale")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := config.RequireValue("ATTENDMARK_SCAN_EVENT_ID", cfg.EventID); err != nil {
		return Config{}, err
	}
	if err := config.RequireValue("ATTENDMARK_OPERATOR_TOKEN", cfg.OperatorToken); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the scan station console on stdin and stdout.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceScanStation, func(ctx context.Context) error {
		return station.Run(ctx, station.Options{
			AttendanceAddr: cfg.AttendanceAddr,
			OperatorToken:  cfg.OperatorToken,
			EventID:        cfg.EventID,
			StationID:      cfg.StationID,
			Interval:       cfg.Interval,
			Cooldown:       cfg.Cooldown,
			FramesDir:      cfg.FramesDir,
			Locale:         cfg.Locale,
		}, os.Stdin, os.Stdout)
	})
}
