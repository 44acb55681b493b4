// Package cmd holds the startup helpers shared by attendmark processes:
// env and flag parsing, telemetry setup and log tagging.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/attendmark/internal/platform/config"
	"github.com/louisbranch/attendmark/internal/platform/otel"
	"github.com/louisbranch/attendmark/internal/platform/timeouts"
)

// Process names used for telemetry resources and log prefixes.
const (
	ServiceAttendance  = "attendance"
	ServiceScanStation = "scanstation"
	ServiceSeed        = "seed"
)

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags over values already loaded from env.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs tracing for service, runs run, and flushes
// pending spans once run returns.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("%s telemetry shutdown: %v", service, err)
		}
	}()
	return run(ctx)
}

// SetLogPrefix tags the standard logger with the upper-cased service name.
func SetLogPrefix(service string) {
	service = strings.TrimSpace(service)
	if service == "" {
		return
	}
	log.SetPrefix("[" + strings.ToUpper(service) + "] ")
}
