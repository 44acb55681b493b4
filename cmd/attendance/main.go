// Package main starts the attendance service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	attendancecmd "github.com/louisbranch/attendmark/internal/cmd/attendance"
	entrypoint "github.com/louisbranch/attendmark/internal/platform/cmd"
)

func main() {
	cfg, err := attendancecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	entrypoint.SetLogPrefix(entrypoint.ServiceAttendance)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := attendancecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
