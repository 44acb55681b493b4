// Package main loads fixture events and registrations into the local
// attendance store and prints one signed credential per registration.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	seedcmd "github.com/louisbranch/attendmark/internal/cmd/seed"
	entrypoint "github.com/louisbranch/attendmark/internal/platform/cmd"
	"github.com/louisbranch/attendmark/internal/platform/config"
)

func main() {
	cfg, err := seedcmd.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	entrypoint.SetLogPrefix(entrypoint.ServiceSeed)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedcmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("seed: %v", err)
	}
}
