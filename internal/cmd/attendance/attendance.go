// Package attendance parses attendance service flags and launches the service.
package attendance

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/attendmark/internal/platform/cmd"
	server "github.com/louisbranch/attendmark/internal/services/attendance/app"
)

// Config holds attendance command configuration.
type Config struct {
	Port     int    `env:"ATTENDMARK_ATTENDANCE_PORT" envDefault:"8095"`
	HTTPAddr string `env:"ATTENDMARK_ATTENDANCE_HTTP_ADDR" envDefault:":8096"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The attendance gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The attendance HTTP listen address (empty disables HTTP)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the attendance gRPC and HTTP APIs.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAttendance, func(context.Context) error {
		return server.Run(ctx, cfg.Port, cfg.HTTPAddr)
	})
}
