// Package main starts the scan station operator console.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	scanstationcmd "github.com/louisbranch/attendmark/internal/cmd/scanstation"
	entrypoint "github.com/louisbranch/attendmark/internal/platform/cmd"
)

func main() {
	cfg, err := scanstationcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	entrypoint.SetLogPrefix(entrypoint.ServiceScanStation)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scanstationcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("scan station: %v", err)
	}
}
